package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresStore is the durable C8 audit chain backend, serializing Append
// with an EXCLUSIVE lock on `audit_log` held for the append transaction
// (plain reads still proceed; a second appender waits and then reads the
// new chain head, including when the table is empty) so concurrent writers
// across multiple gateway processes still produce one total order, matching
// spec §5's requirement that an external replacement preserve the
// serialization point a single in-process mutex gives for free.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB against the `audit_log`
// table of spec §6.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, actorAgentID *string, action string, request, result interface{}) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `LOCK TABLE audit_log IN EXCLUSIVE MODE`); err != nil {
		return Entry{}, fmt.Errorf("audit: lock audit_log: %w", err)
	}

	var prevHash *string
	var head sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT row_hash FROM audit_log ORDER BY id DESC LIMIT 1 FOR UPDATE`).Scan(&head)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("audit: lock chain head: %w", err)
	}
	if head.Valid {
		h := head.String
		prevHash = &h
	}

	rowHash, err := computeRowHash(actorAgentID, action, request, result, prevHash)
	if err != nil {
		return Entry{}, err
	}

	requestJSON, err := json.Marshal(request)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal request: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal result: %w", err)
	}

	var actor sql.NullString
	if actorAgentID != nil {
		actor = sql.NullString{String: *actorAgentID, Valid: true}
	}

	var entry Entry
	err = tx.QueryRowContext(ctx,
		`INSERT INTO audit_log (ts, actor_agent_id, action, request, result, prev_hash, row_hash)
		 VALUES (now(), $1, $2, $3, $4, $5, $6)
		 RETURNING id, ts`,
		actor, action, requestJSON, resultJSON, prevHash, rowHash,
	).Scan(&entry.ID, &entry.Ts)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("audit: commit append tx: %w", err)
	}

	entry.ActorAgentID = actorAgentID
	entry.Action = action
	entry.Request = request
	entry.Result = result
	entry.PrevHash = prevHash
	entry.RowHash = rowHash
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, actor_agent_id, action, request, result, prev_hash, row_hash
		 FROM audit_log ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var actor, prevHash sql.NullString
		var requestJSON, resultJSON []byte
		if err := rows.Scan(&e.ID, &e.Ts, &actor, &e.Action, &requestJSON, &resultJSON, &prevHash, &e.RowHash); err != nil {
			return nil, fmt.Errorf("audit: scan entry row: %w", err)
		}
		if actor.Valid {
			v := actor.String
			e.ActorAgentID = &v
		}
		if prevHash.Valid {
			v := prevHash.String
			e.PrevHash = &v
		}
		if err := json.Unmarshal(requestJSON, &e.Request); err != nil {
			return nil, fmt.Errorf("audit: unmarshal request: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &e.Result); err != nil {
			return nil, fmt.Errorf("audit: unmarshal result: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entry rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Verify(ctx context.Context) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	return VerifyEntries(entries)
}
