// Package file reads the enrollment table from a YAML or JSON document that
// maps each identity name to its classifier label:
//
//	Breno: 0
//	IlleeSilva: 1
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/facegate/internal/facegate/store"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

type EnrollmentFile struct {
	path string
}

func NewEnrollmentFile(path string) *EnrollmentFile {
	return &EnrollmentFile{path: path}
}

func (f *EnrollmentFile) Path() string { return f.path }

func (f *EnrollmentFile) Enrollment(_ context.Context) (types.Enrollment, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrEnrollmentNotFound, f.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read enrollment %s: %w", f.path, err)
	}
	return Parse(b)
}

// Parse decodes an enrollment document.  JSON is accepted since it is valid
// YAML.
func Parse(b []byte) (types.Enrollment, error) {
	var raw map[string]int
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse enrollment: %w", err)
	}
	if len(raw) == 0 {
		return nil, store.ErrEnrollmentNotFound
	}

	out := make(types.Enrollment, len(raw))
	for name, label := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("parse enrollment: blank name for label %d", label)
		}
		out[name] = label
	}
	return out, nil
}
