package storage

import (
	"errors"
	"fmt"
	"sync"
)

// ErrQuotaExceeded is returned by Memory.Set when a write would grow the
// store past its configured quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// DefaultMemoryQuota is the default total size a Memory backend will hold,
// mirroring the ~5MB session-storage limit the store models.
const DefaultMemoryQuota = 5 << 20

// Memory is an in-process Backend.  It is the session-storage analog: the
// stored state lives exactly as long as the process.
type Memory struct {
	mu    sync.Mutex
	areas map[string]string
	quota int
}

// NewMemory creates an in-process backend.  Supported options:
// WithQuota.
func NewMemory(opt ...Option) *Memory {
	opts := getBackendOpts(opt...)
	return &Memory{
		areas: map[string]string{},
		quota: opts.withQuota,
	}
}

// Get implements Backend.
func (m *Memory) Get(name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.areas[name]
	return v, ok, nil
}

// Set implements Backend.  It fails with ErrQuotaExceeded when the write
// would grow the total stored size past the quota.
func (m *Memory) Set(name, value string) error {
	const op = "storage.Memory.Set"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		total := len(value)
		for k, v := range m.areas {
			if k == name {
				continue
			}
			total += len(v)
		}
		if total > m.quota {
			return fmt.Errorf("%s: area %q: %w", op, name, ErrQuotaExceeded)
		}
	}
	m.areas[name] = value
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.areas, name)
	return nil
}

// backendOptions is the set of available options for backends.
type backendOptions struct {
	withQuota int
}

// backendDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func backendDefaults() backendOptions {
	return backendOptions{
		withQuota: DefaultMemoryQuota,
	}
}

// getBackendOpts gets the backend defaults and applies the opt overrides
// passed in.
func getBackendOpts(opt ...Option) backendOptions {
	opts := backendDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// Option defines a common functional options type for the storage package.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default
// options and applies the slice of opt as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// WithQuota provides an optional total size limit in bytes for a Memory
// backend.  A quota of 0 disables the limit.
func WithQuota(bytes int) Option {
	return func(o interface{}) {
		if o, ok := o.(*backendOptions); ok {
			o.withQuota = bytes
		}
	}
}
