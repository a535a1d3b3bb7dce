// Package audit implements the hash-chained, append-only audit log (spec
// C8): every entry's row_hash commits to its predecessor's row_hash, so
// tampering with any stored entry is detectable by recomputation.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/inneri/gateway/pkg/canon"
	"github.com/inneri/gateway/pkg/cryptoutil"
)

// Entry is one hash-chain node (spec §3 AuditEntry).
type Entry struct {
	ID           int64
	Ts           time.Time
	ActorAgentID *string
	Action       string
	Request      interface{}
	Result       interface{}
	PrevHash     *string
	RowHash      string
}

// hashInput is the exact field set spec §3's row_hash formula commits to:
// row_hash(e) = SHA256(canonical_json({actor_agent_id, action, request, result, prev_hash})).
type hashInput struct {
	ActorAgentID *string     `json:"actor_agent_id"`
	Action       string      `json:"action"`
	Request      interface{} `json:"request"`
	Result       interface{} `json:"result"`
	PrevHash     *string     `json:"prev_hash"`
}

// computeRowHash reproduces spec §3's chain formula. It is package-private;
// callers outside the package recompute hashes through VerifyEntries.
func computeRowHash(actorAgentID *string, action string, request, result interface{}, prevHash *string) (string, error) {
	canonical, err := canon.JCS(hashInput{
		ActorAgentID: actorAgentID,
		Action:       action,
		Request:      request,
		Result:       result,
		PrevHash:     prevHash,
	})
	if err != nil {
		return "", err
	}
	return cryptoutil.Digest(canonical), nil
}

// ErrChainBroken is returned by Verify when a stored entry's row_hash does
// not match its recomputed value, or prev_hash does not chain to the
// predecessor's row_hash.
type ErrChainBroken struct {
	EntryID int64
	Reason  string
}

func (e *ErrChainBroken) Error() string {
	return "audit: chain broken at entry " + itoa(e.EntryID) + ": " + e.Reason
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Store is the C8 audit chain contract. Append is the sole write operation;
// every other accessor is read-only, preserving append-only semantics.
type Store interface {
	// Append computes the new entry's row_hash over the current chain head
	// and inserts it, serialized with respect to every other Append so that
	// prev_hash values form a total linear chain (spec §4.8, §5).
	Append(ctx context.Context, actorAgentID *string, action string, request, result interface{}) (Entry, error)
	// List returns every entry in ascending id order.
	List(ctx context.Context) ([]Entry, error)
	// Verify recomputes every stored row_hash and confirms the prev_hash
	// chain, returning *ErrChainBroken at the first discrepancy.
	Verify(ctx context.Context) error
}

// MemoryStore is the default in-process audit store: a single mutex
// serializes Append, satisfying spec §5's "global serialization point for
// appends" with the simplest correct mechanism for a single process.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
}

// NewMemoryStore returns an empty audit chain.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(_ context.Context, actorAgentID *string, action string, request, result interface{}) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prevHash *string
	if n := len(s.entries); n > 0 {
		h := s.entries[n-1].RowHash
		prevHash = &h
	}

	rowHash, err := computeRowHash(actorAgentID, action, request, result, prevHash)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:           s.nextID,
		Ts:           time.Now().UTC(),
		ActorAgentID: actorAgentID,
		Action:       action,
		Request:      request,
		Result:       result,
		PrevHash:     prevHash,
		RowHash:      rowHash,
	}
	s.nextID++
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Verify(ctx context.Context) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	return VerifyEntries(entries)
}

// VerifyEntries implements spec §8 property 1 for any ordered entry
// sequence: every row_hash must recompute to its stored value and every
// prev_hash must equal its predecessor's row_hash. Exported so operators can
// verify an exported snapshot of the chain, not just a live Store.
func VerifyEntries(entries []Entry) error {
	var expectedPrev *string
	for _, e := range entries {
		if !sameHash(e.PrevHash, expectedPrev) {
			return &ErrChainBroken{EntryID: e.ID, Reason: "prev_hash does not match predecessor's row_hash"}
		}
		recomputed, err := computeRowHash(e.ActorAgentID, e.Action, e.Request, e.Result, e.PrevHash)
		if err != nil {
			return err
		}
		if recomputed != e.RowHash {
			return &ErrChainBroken{EntryID: e.ID, Reason: "stored row_hash does not match recomputed value"}
		}
		h := e.RowHash
		expectedPrev = &h
	}
	return nil
}

func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
