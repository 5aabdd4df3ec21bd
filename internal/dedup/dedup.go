// Package dedup tracks seen URLs and content fingerprints across one run.
package dedup

import (
	"sync"

	"github.com/lumira/research-crawler/internal/pipeline"
)

// Registry is the run-scoped seen-set. The test-and-insert is atomic: two
// workers racing on the same URL or fingerprint can never both register.
type Registry struct {
	mu           sync.Mutex
	urls         map[string]struct{}
	fingerprints map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		urls:         make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
	}
}

// CheckAndRegister tests membership of the normalized URL and the
// fingerprint under one lock. If either is already present it returns false
// and mutates nothing; otherwise it inserts both and returns true.
func (r *Registry) CheckAndRegister(rawURL, fingerprint string) (bool, error) {
	key, err := pipeline.NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.urls[key]; seen {
		return false, nil
	}
	if fingerprint != "" {
		if _, seen := r.fingerprints[fingerprint]; seen {
			return false, nil
		}
	}

	r.urls[key] = struct{}{}
	if fingerprint != "" {
		r.fingerprints[fingerprint] = struct{}{}
	}
	return true, nil
}

// Len reports how many distinct URLs have been registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.urls)
}
