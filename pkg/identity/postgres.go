package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresStore is the durable C4 Store backend, grounded on the teacher's
// credentials/store.go (*sql.DB-wrapped struct, parameterized queries,
// ON CONFLICT upserts) and spec §6's `agents`, `agent_keys`, `reputations`,
// `verifications` tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB. Schema migration is the
// caller's responsibility (spec §6 names the tables; DDL lives outside this
// package, matching the teacher's convention of not embedding migrations in
// the store type).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Register(ctx context.Context, agent Agent, key AgentKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("identity: begin registration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM agents WHERE agent_id = $1)`, agent.AgentID).Scan(&exists); err != nil {
		return fmt.Errorf("identity: check existing agent: %w", err)
	}
	if exists {
		return ErrAgentIDTaken
	}

	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agents (agent_id, display_name, role, verification_level, risk_tier, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		agent.AgentID, agent.DisplayName, agent.Role, agent.VerificationLevel, agent.RiskTier, agent.CreatedAt,
	); err != nil {
		return fmt.Errorf("identity: insert agent: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agent_keys (agent_id, public_key_pem) VALUES ($1, $2)`,
		key.AgentID, key.PublicKeyPEM,
	); err != nil {
		return fmt.Errorf("identity: insert agent key: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reputations (agent_id, score) VALUES ($1, $2)`,
		agent.AgentID, initialReputationScore,
	); err != nil {
		return fmt.Errorf("identity: insert reputation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("identity: commit registration tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, agentID string) (Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, display_name, role, verification_level, risk_tier, created_at
		 FROM agents WHERE agent_id = $1`, agentID,
	).Scan(&a.AgentID, &a.DisplayName, &a.Role, &a.VerificationLevel, &a.RiskTier, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrAgentNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("identity: get agent: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetAgentKey(ctx context.Context, agentID string) (AgentKey, error) {
	var k AgentKey
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, public_key_pem FROM agent_keys WHERE agent_id = $1`, agentID,
	).Scan(&k.AgentID, &k.PublicKeyPEM)
	if errors.Is(err, sql.ErrNoRows) {
		return AgentKey{}, ErrAgentKeyNotFound
	}
	if err != nil {
		return AgentKey{}, fmt.Errorf("identity: get agent key: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, agent Agent) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET display_name = $2, role = $3, verification_level = $4, risk_tier = $5
		 WHERE agent_id = $1`,
		agent.AgentID, agent.DisplayName, agent.Role, agent.VerificationLevel, agent.RiskTier,
	)
	if err != nil {
		return fmt.Errorf("identity: update agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("identity: update agent rows affected: %w", err)
	}
	if n == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (s *PostgresStore) GetReputation(ctx context.Context, agentID string) (Reputation, error) {
	var r Reputation
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, score FROM reputations WHERE agent_id = $1`, agentID,
	).Scan(&r.AgentID, &r.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return Reputation{}, ErrAgentNotFound
	}
	if err != nil {
		return Reputation{}, fmt.Errorf("identity: get reputation: %w", err)
	}
	return r, nil
}

// AdjustReputation clamps within a transaction so concurrent adjustments
// never push the score outside [0, 100] even under overlapping writers.
func (s *PostgresStore) AdjustReputation(ctx context.Context, agentID string, delta int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("identity: begin reputation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var score int
	err = tx.QueryRowContext(ctx, `SELECT score FROM reputations WHERE agent_id = $1 FOR UPDATE`, agentID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAgentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("identity: lock reputation row: %w", err)
	}

	score = clampReputation(score + delta)
	if _, err := tx.ExecContext(ctx, `UPDATE reputations SET score = $2 WHERE agent_id = $1`, agentID, score); err != nil {
		return 0, fmt.Errorf("identity: update reputation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("identity: commit reputation tx: %w", err)
	}
	return score, nil
}

func (s *PostgresStore) AppendVerification(ctx context.Context, v Verification) error {
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	report, err := json.Marshal(v.Report)
	if err != nil {
		return fmt.Errorf("identity: marshal verification report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verifications (agent_id, level, report, "timestamp") VALUES ($1, $2, $3, $4)`,
		v.AgentID, v.Level, report, v.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("identity: insert verification: %w", err)
	}
	return nil
}
