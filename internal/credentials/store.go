// Package credentials manages the per-tenant credential directories that
// engines use to persist a paired login across restarts.
//
// Every tenant owns exactly one directory, <root>/<prefix><tenantID>. The
// directory name is also how tenants are rediscovered at boot.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultPrefix is the directory-name prefix used when none is configured.
const DefaultPrefix = "session-"

var (
	// ErrInvalidTenantID is returned when a tenant ID is empty or contains
	// characters that are unsafe in a directory name.
	ErrInvalidTenantID = errors.New("credentials: invalid tenant id")

	// ErrInvalidPrefix is returned when the directory prefix is empty or
	// contains a path separator.
	ErrInvalidPrefix = errors.New("credentials: invalid directory prefix")
)

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateTenantID checks that id can be used as a tenant key and as part of
// a directory name.
func ValidateTenantID(id string) error {
	if !tenantIDPattern.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return nil
}

// Store resolves and manages credential directories under one root.
type Store struct {
	root   string
	prefix string
}

// NewStore returns a Store rooted at root. An empty prefix selects
// DefaultPrefix.
func NewStore(root, prefix string) (*Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if strings.ContainsAny(prefix, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	if root == "" {
		return nil, errors.New("credentials: root directory is required")
	}
	return &Store{root: filepath.Clean(root), prefix: prefix}, nil
}

// Root returns the credential root directory.
func (s *Store) Root() string {
	return s.root
}

// EnsureRoot creates the root directory if it does not exist.
func (s *Store) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return fmt.Errorf("creating credential root: %w", err)
	}
	return nil
}

// Path returns the credential directory for a tenant. The tenant ID must
// already be valid.
func (s *Store) Path(tenantID string) string {
	return filepath.Join(s.root, s.prefix+tenantID)
}

// Exists reports whether a tenant has a credential directory.
func (s *Store) Exists(tenantID string) bool {
	if ValidateTenantID(tenantID) != nil {
		return false
	}
	info, err := os.Stat(s.Path(tenantID))
	return err == nil && info.IsDir()
}

// Remove deletes a tenant's credential directory. A missing directory is
// not an error.
func (s *Store) Remove(tenantID string) error {
	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Path(tenantID)); err != nil {
		return fmt.Errorf("removing credentials for %s: %w", tenantID, err)
	}
	return nil
}

// List returns the tenant IDs that have a credential directory, sorted.
// Entries that are not directories or whose suffix is not a valid tenant ID
// are skipped.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading credential root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := strings.CutPrefix(entry.Name(), s.prefix)
		if !ok || ValidateTenantID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
