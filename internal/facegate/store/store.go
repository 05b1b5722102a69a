package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

var (
	ErrEnrollmentNotFound = errors.New("enrollment table not found")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrLabelTaken         = errors.New("label already enrolled under another name")
	ErrBlankName          = errors.New("identity name is required")
)

// Identity is one enrolled person.
type Identity struct {
	Label      int
	Name       string
	EnrolledAt time.Time
}

// EnrollmentStore yields the name -> label table the classifier was trained
// against.  It is read once at start-up.
type EnrollmentStore interface {
	Enrollment(ctx context.Context) (types.Enrollment, error)
}

// IdentityStore is the writable side used by the enroll commands.
type IdentityStore interface {
	EnrollmentStore
	Enroll(ctx context.Context, name string, label int, t time.Time) error
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]Identity, error)
}
