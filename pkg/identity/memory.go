package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process Store implementation, grounded on
// the teacher's mutex-guarded map pattern (pkg/identity/keyset.go's
// InMemoryKeySet), generalized to the four identity record types.
type MemoryStore struct {
	mu            sync.Mutex
	agents        map[string]Agent
	keys          map[string]AgentKey
	reputations   map[string]Reputation
	verifications []Verification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:      make(map[string]Agent),
		keys:        make(map[string]AgentKey),
		reputations: make(map[string]Reputation),
	}
}

func (s *MemoryStore) Register(_ context.Context, agent Agent, key AgentKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[agent.AgentID]; exists {
		return ErrAgentIDTaken
	}

	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	s.agents[agent.AgentID] = agent
	s.keys[agent.AgentID] = key
	s.reputations[agent.AgentID] = Reputation{AgentID: agent.AgentID, Score: initialReputationScore}
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, agentID string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return a, nil
}

func (s *MemoryStore) GetAgentKey(_ context.Context, agentID string) (AgentKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[agentID]
	if !ok {
		return AgentKey{}, ErrAgentKeyNotFound
	}
	return k, nil
}

func (s *MemoryStore) UpdateAgent(_ context.Context, agent Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agent.AgentID]; !ok {
		return ErrAgentNotFound
	}
	s.agents[agent.AgentID] = agent
	return nil
}

func (s *MemoryStore) GetReputation(_ context.Context, agentID string) (Reputation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reputations[agentID]
	if !ok {
		return Reputation{}, ErrAgentNotFound
	}
	return r, nil
}

func (s *MemoryStore) AdjustReputation(_ context.Context, agentID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reputations[agentID]
	if !ok {
		return 0, ErrAgentNotFound
	}
	r.Score = clampReputation(r.Score + delta)
	s.reputations[agentID] = r
	return r.Score, nil
}

func (s *MemoryStore) AppendVerification(_ context.Context, v Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	s.verifications = append(s.verifications, v)
	return nil
}
