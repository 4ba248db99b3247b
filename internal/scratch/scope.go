// Package scratch owns the per-request temporary storage area.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spherical/table-extractor/internal/domain"
)

// Scope is one request's exclusive scratch directory. Every intermediate
// artifact of the request lives beneath Dir and is removed by Close.
type Scope struct {
	dir  string
	once sync.Once
	err  error
}

// Open creates a fresh scratch directory under baseDir.
func Open(baseDir, requestID string) (*Scope, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, domain.IOError("Failed to create scratch base directory", err)
	}

	dir, err := os.MkdirTemp(baseDir, fmt.Sprintf("req-%s-*", requestID))
	if err != nil {
		return nil, domain.IOError("Failed to create scratch directory", err)
	}

	return &Scope{dir: dir}, nil
}

// Dir returns the root of the scope.
func (s *Scope) Dir() string {
	return s.dir
}

// Path joins parts beneath the scope root.
func (s *Scope) Path(parts ...string) string {
	return filepath.Join(append([]string{s.dir}, parts...)...)
}

// MkdirAll creates a directory beneath the scope root and returns its path.
func (s *Scope) MkdirAll(parts ...string) (string, error) {
	p := s.Path(parts...)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", domain.IOError(fmt.Sprintf("Failed to create %s", p), err)
	}
	return p, nil
}

// Close removes the scope and everything in it. Safe to call more than once.
func (s *Scope) Close() error {
	s.once.Do(func() {
		if err := os.RemoveAll(s.dir); err != nil {
			s.err = domain.IOError("Failed to remove scratch directory", err)
		}
	})
	return s.err
}
