package service

import (
	"errors"
	"fmt"

	"github.com/mmynk/streamshare/internal/storage"
)

// Error taxonomy returned by the services. Callers match with errors.Is;
// every returned error wraps exactly one of these or a storage failure.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state")
	ErrCapacity        = errors.New("group is full")
	ErrAlreadyMember   = errors.New("already a member")
	ErrConflict        = errors.New("concurrent modification")
	ErrInvalidArgument = errors.New("invalid argument")
)

// translate maps storage sentinels onto the service taxonomy. Conflicts are
// left as storage.ErrConflict so the retry loop can recognise them.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrAlreadyMember, err)
	}
	return err
}
