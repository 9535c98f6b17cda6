package driver

import (
	"context"

	"github.com/dracory/insightpilot/internal/resultset"
	"github.com/dracory/insightpilot/shared/types"
)

// Driver opens connections to the backend described by a profile.
type Driver interface {
	// Connect opens a connection and verifies it is reachable before returning.
	Connect(ctx context.Context, profile types.ConnectionProfile) (Handle, error)
}

// Handle is an open backend connection.
type Handle interface {
	Execute(ctx context.Context, query string) (*resultset.ResultSet, error)
	Tables(ctx context.Context) ([]string, error)
	Close() error
}
