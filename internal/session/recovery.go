package session

import (
	"context"
	"errors"
	"os"
)

// TenantLister enumerates tenants that have persisted credentials.
type TenantLister interface {
	List() ([]string, error)
}

// Initializer starts a tenant session.
type Initializer interface {
	Initialize(ctx context.Context, tenantID string) error
}

// Recover initializes a session for every tenant the lister returns and
// reports how many started. A failed scan degrades to zero sessions; a
// failed Initialize is logged and the scan continues.
func Recover(ctx context.Context, lister TenantLister, starter Initializer, logger Logger) int {
	if logger == nil {
		logger = noopLogger{}
	}

	ids, err := lister.List()
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no credential directory yet, nothing to recover")
		return 0
	case err != nil:
		logger.Warn("credential scan failed, starting with no sessions", "error", err)
		return 0
	}

	started := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			logger.Warn("session recovery interrupted", "remaining", len(ids)-i)
			break
		}
		if err := starter.Initialize(ctx, id); err != nil {
			logger.Error("restoring session failed", "tenant_id", id, "error", err)
			continue
		}
		started++
	}

	logger.Info("session recovery complete", "found", len(ids), "started", started)
	return started
}
