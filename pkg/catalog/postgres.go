package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresStore is the durable C5 catalog backend for deployments that
// manage tool definitions outside of process restarts, grounded on the same
// *sql.DB-wrapped pattern as identity.PostgresStore.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB against the `tools`
// table named in spec §6.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, toolID string) (Tool, error) {
	var t Tool
	var schema []byte
	var vaultRole sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT tool_id, name, description, risk, json_schema, requires_vault_role, enabled, version
		 FROM tools WHERE tool_id = $1 AND enabled = true`, toolID,
	).Scan(&t.ToolID, &t.Name, &t.Description, &t.Risk, &schema, &vaultRole, &t.Enabled, &t.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Tool{}, ErrNotFoundOrDisabled
	}
	if err != nil {
		return Tool{}, fmt.Errorf("catalog: get tool: %w", err)
	}
	t.JSONSchema = json.RawMessage(schema)
	t.RequiresVaultRole = vaultRole.String
	return t, nil
}

func (s *PostgresStore) ListEnabled(ctx context.Context) ([]Tool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_id, name, description, risk, json_schema, requires_vault_role, enabled, version
		 FROM tools WHERE enabled = true ORDER BY tool_id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list tools: %w", err)
	}
	defer rows.Close()

	var out []Tool
	for rows.Next() {
		var t Tool
		var schema []byte
		var vaultRole sql.NullString
		if err := rows.Scan(&t.ToolID, &t.Name, &t.Description, &t.Risk, &schema, &vaultRole, &t.Enabled, &t.Version); err != nil {
			return nil, fmt.Errorf("catalog: scan tool row: %w", err)
		}
		t.JSONSchema = json.RawMessage(schema)
		t.RequiresVaultRole = vaultRole.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate tool rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, tool Tool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tools (tool_id, name, description, risk, json_schema, requires_vault_role, enabled, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (tool_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			risk = EXCLUDED.risk,
			json_schema = EXCLUDED.json_schema,
			requires_vault_role = EXCLUDED.requires_vault_role,
			enabled = EXCLUDED.enabled,
			version = EXCLUDED.version`,
		tool.ToolID, tool.Name, tool.Description, tool.Risk, []byte(tool.JSONSchema), tool.RequiresVaultRole, tool.Enabled, tool.Version,
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert tool: %w", err)
	}
	return nil
}
