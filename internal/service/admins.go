package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/storage"
)

// AdminDirectory answers whether a user is a system administrator, who may
// manage any group without holding a role in it.
type AdminDirectory interface {
	IsSystemAdmin(ctx context.Context, userID string) (bool, error)
}

// UserLookup is the part of the store EmailAdmins needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// EmailAdmins treats users whose email is in a configured set as system
// administrators.
type EmailAdmins struct {
	users  UserLookup
	emails map[string]struct{}
}

// NewEmailAdmins builds an EmailAdmins from a list of addresses.
// Matching is case-insensitive.
func NewEmailAdmins(users UserLookup, emails []string) *EmailAdmins {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return &EmailAdmins{users: users, emails: set}
}

// IsSystemAdmin implements AdminDirectory. Unknown users are not admins.
func (a *EmailAdmins) IsSystemAdmin(ctx context.Context, userID string) (bool, error) {
	if len(a.emails) == 0 || userID == "" {
		return false, nil
	}
	user, err := a.users.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, ok := a.emails[strings.ToLower(user.Email)]
	return ok, nil
}

// Unresolved returns the configured addresses that match no account, sorted.
func (a *EmailAdmins) Unresolved(ctx context.Context) ([]string, error) {
	var missing []string
	for email := range a.emails {
		_, err := a.users.GetUserByEmail(ctx, email)
		if errors.Is(err, storage.ErrNotFound) {
			missing = append(missing, email)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// noAdmins is the directory used when none is configured.
type noAdmins struct{}

func (noAdmins) IsSystemAdmin(context.Context, string) (bool, error) { return false, nil }
