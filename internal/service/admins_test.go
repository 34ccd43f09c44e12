package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/storage"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (f fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

type brokenUsers struct{}

func (brokenUsers) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, errors.New("connection reset")
}

func (brokenUsers) GetUserByID(context.Context, string) (*models.User, error) {
	return nil, errors.New("connection reset")
}

func TestEmailAdmins(t *testing.T) {
	users := fakeUsers{
		"a": {ID: "a", Email: "Root@Example.com"},
		"b": {ID: "b", Email: "bob@example.com"},
	}
	admins := NewEmailAdmins(users, []string{" root@example.com ", ""})
	ctx := context.Background()

	tests := []struct {
		userID string
		want   bool
	}{
		{"a", true},
		{"b", false},
		{"unknown", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := admins.IsSystemAdmin(ctx, tt.userID)
		if err != nil {
			t.Fatalf("IsSystemAdmin(%q) failed: %v", tt.userID, err)
		}
		if got != tt.want {
			t.Errorf("IsSystemAdmin(%q) = %v, want %v", tt.userID, got, tt.want)
		}
	}

	if _, err := NewEmailAdmins(brokenUsers{}, []string{"x@example.com"}).IsSystemAdmin(ctx, "a"); err == nil {
		t.Error("expected lookup error to surface")
	}
	if ok, err := NewEmailAdmins(brokenUsers{}, nil).IsSystemAdmin(ctx, "a"); ok || err != nil {
		t.Errorf("empty admin list should never consult the store, got %v, %v", ok, err)
	}
}

func TestEmailAdmins_Unresolved(t *testing.T) {
	ctx := context.Background()
	users := fakeUsers{"a": {ID: "a", Email: "root@example.com"}}

	missing, err := NewEmailAdmins(users, []string{"Root@Example.com", "zed@example.com", "ops@example.com"}).Unresolved(ctx)
	if err != nil {
		t.Fatalf("Unresolved failed: %v", err)
	}
	want := []string{"ops@example.com", "zed@example.com"}
	if strings.Join(missing, ",") != strings.Join(want, ",") {
		t.Errorf("Unresolved() = %v, want %v", missing, want)
	}

	if _, err := NewEmailAdmins(brokenUsers{}, []string{"x@example.com"}).Unresolved(ctx); err == nil {
		t.Error("expected lookup error to surface")
	}
}

func TestEmailAdmins_UnresolvedAgainstStore(t *testing.T) {
	env := setupTestServices(t, Options{}, nil)
	ctx := context.Background()

	ops := models.NewUser("ops@example.com", "Ops")
	if err := env.store.CreateUser(ctx, ops); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	missing, err := NewEmailAdmins(env.store, []string{"OPS@example.com", "gone@example.com"}).Unresolved(ctx)
	if err != nil {
		t.Fatalf("Unresolved failed: %v", err)
	}
	if len(missing) != 1 || missing[0] != "gone@example.com" {
		t.Errorf("Unresolved() = %v, want [gone@example.com]", missing)
	}
}
