package stores

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry is a map-backed Registry. It is safe for concurrent use.
type MemoryRegistry struct {
	mu    sync.RWMutex
	hosts map[string]*Host
}

// NewMemoryRegistry creates a registry holding hosts.
func NewMemoryRegistry(hosts ...*Host) *MemoryRegistry {
	r := &MemoryRegistry{hosts: make(map[string]*Host)}
	for _, h := range hosts {
		_ = r.AddHost(context.Background(), h)
	}
	return r
}

// AddHost inserts or updates a host record keyed by address.
func (r *MemoryRegistry) AddHost(_ context.Context, host *Host) error {
	if host.Address == "" {
		return fmt.Errorf("host address is required")
	}
	if host.RootPath == "" {
		return fmt.Errorf("root path is required for host %s", host.Address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored, ok := r.hosts[host.Address]
	if !ok {
		stored = &Host{ID: uuid.NewString(), Address: host.Address, CreatedAt: now}
		r.hosts[host.Address] = stored
	}
	stored.RootPath = host.RootPath
	stored.Labels = maps.Clone(host.Labels)
	stored.UpdatedAt = now

	*host = *copyHost(stored)
	return nil
}

// GetHost returns the host registered under address.
func (r *MemoryRegistry) GetHost(_ context.Context, address string) (*Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	host, ok := r.hosts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, address)
	}
	return copyHost(host), nil
}

// RootPath returns the deployment root path registered for address.
func (r *MemoryRegistry) RootPath(ctx context.Context, address string) (string, error) {
	host, err := r.GetHost(ctx, address)
	if err != nil {
		return "", err
	}
	return host.RootPath, nil
}

// ListHosts returns every registered host ordered by registration time.
func (r *MemoryRegistry) ListHosts(_ context.Context) ([]*Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hosts := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		hosts = append(hosts, copyHost(h))
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].CreatedAt.Equal(hosts[j].CreatedAt) {
			return hosts[i].Address < hosts[j].Address
		}
		return hosts[i].CreatedAt.Before(hosts[j].CreatedAt)
	})
	return hosts, nil
}

// RemoveHost deletes the host registered under address.
func (r *MemoryRegistry) RemoveHost(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hosts[address]; !ok {
		return fmt.Errorf("%w: %s", ErrHostNotFound, address)
	}
	delete(r.hosts, address)
	return nil
}

// Close is a no-op.
func (r *MemoryRegistry) Close() error { return nil }

func copyHost(h *Host) *Host {
	c := *h
	c.Labels = maps.Clone(h.Labels)
	return &c
}
