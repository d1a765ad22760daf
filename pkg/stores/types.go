package stores

import (
	"context"
	"errors"
	"time"
)

// ErrHostNotFound is returned when a host is not in the registry.
var ErrHostNotFound = errors.New("host not found in registry")

// Host is one registered target machine.
type Host struct {
	ID        string            `json:"id"`
	Address   string            `json:"address"`
	RootPath  string            `json:"root_path"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Registry supplies target hosts and their deployment root paths.
type Registry interface {
	// RootPath returns the deployment root path registered for address.
	RootPath(ctx context.Context, address string) (string, error)

	// AddHost registers a host, replacing root path and labels if the
	// address is already registered.
	AddHost(ctx context.Context, host *Host) error

	// GetHost returns the host registered under address.
	GetHost(ctx context.Context, address string) (*Host, error)

	// ListHosts returns every registered host ordered by registration time.
	ListHosts(ctx context.Context) ([]*Host, error)

	// RemoveHost deletes the host registered under address.
	RemoveHost(ctx context.Context, address string) error

	Close() error
}
