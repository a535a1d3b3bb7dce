// Package nonce implements the single-use handshake nonce registry (spec
// C3): issuing a fresh nonce replaces any prior binding for that agent, and
// a successful consume removes the binding so it cannot be replayed.
package nonce

import (
	"sync"
	"time"

	"github.com/inneri/gateway/pkg/cryptoutil"
)

// TTL is how long an issued nonce remains consumable.
const TTL = 120 * time.Second

// Registry issues and consumes single-use handshake nonces.
type Registry interface {
	// Issue creates a fresh nonce for agentID, overwriting any prior binding,
	// and returns the nonce and its Unix expiry.
	Issue(agentID string) (nonceValue string, expiresUnix int64, err error)
	// Consume reports whether nonceValue is the live, unexpired binding for
	// agentID as of now, removing the binding on success only.
	Consume(agentID, nonceValue string, now time.Time) bool
}

type binding struct {
	nonce       string
	expiresUnix int64
}

// InMemoryRegistry is the default single-process nonce store, grounded on
// the teacher's mutex-guarded map-of-keys pattern (pkg/identity/keyset.go's
// InMemoryKeySet), generalized from signing keys to single-use nonces.
type InMemoryRegistry struct {
	mu       sync.Mutex
	bindings map[string]binding
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{bindings: make(map[string]binding)}
}

func (r *InMemoryRegistry) Issue(agentID string) (string, int64, error) {
	n, err := cryptoutil.GenerateNonce()
	if err != nil {
		return "", 0, err
	}

	expires := time.Now().Add(TTL).Unix()

	r.mu.Lock()
	r.bindings[agentID] = binding{nonce: n, expiresUnix: expires}
	r.mu.Unlock()

	return n, expires, nil
}

func (r *InMemoryRegistry) Consume(agentID, nonceValue string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[agentID]
	if !ok {
		return false
	}
	if b.nonce != nonceValue || b.expiresUnix < now.Unix() {
		return false
	}

	delete(r.bindings, agentID)
	return true
}
