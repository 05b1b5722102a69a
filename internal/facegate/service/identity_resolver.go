package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

// DefaultThreshold is the largest classifier distance still considered a
// match.  It is high enough that almost every prediction reaches the
// enrollment lookup; lower it to make the Unknown gate bite.
const DefaultThreshold = 1_000_000.0

var (
	ErrEmptyEnrollment   = errors.New("enrollment table is empty")
	ErrDuplicateLabel    = errors.New("enrollment label assigned to more than one name")
	ErrInvalidEnrollName = errors.New("enrollment name is required")
)

// IdentityResolver maps classifier output to an enrolled name.
type IdentityResolver struct {
	names     map[int]string
	threshold float64
}

// NewIdentityResolver inverts the enrollment (name -> label) into the lookup
// table used at prediction time.
func NewIdentityResolver(enrollment types.Enrollment, threshold float64) (*IdentityResolver, error) {
	if len(enrollment) == 0 {
		return nil, ErrEmptyEnrollment
	}

	names := make(map[int]string, len(enrollment))
	for name, label := range enrollment {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, ErrInvalidEnrollName
		}
		if prev, ok := names[label]; ok {
			return nil, fmt.Errorf("%w: label %d used by %q and %q", ErrDuplicateLabel, label, prev, name)
		}
		names[label] = name
	}

	return &IdentityResolver{names: names, threshold: threshold}, nil
}

// Resolve gates on the score first, then looks the label up.  Scores are
// distances: a score equal to the threshold still passes.
func (r *IdentityResolver) Resolve(label int, score float64) string {
	if score > r.threshold {
		return types.Unknown
	}
	name, ok := r.names[label]
	if !ok {
		return types.Unknown
	}
	return name
}

func (r *IdentityResolver) Threshold() float64 { return r.threshold }

func (r *IdentityResolver) Len() int { return len(r.names) }
