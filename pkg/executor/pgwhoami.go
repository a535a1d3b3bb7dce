package executor

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver, registered for the DSN pg_whoami builds from brokered creds

	"github.com/inneri/gateway/pkg/broker"
)

// PgWhoamiExecutor implements spec §4.9's pg_whoami: it obtains a
// just-in-time database credential from the secret broker, opens a
// connection with it, runs "select current_user", and reports the lease
// metadata. Credentials never appear in the returned output, in any error
// this executor produces, or in any audit/receipt path downstream.
type PgWhoamiExecutor struct {
	brokerClient broker.Client
	vaultRole    string
	hostPort     string // "host:port" for the target Postgres instance
	dbName       string
}

// NewPgWhoamiExecutor wires the brokered-credential tool to a secret broker
// and a target database coordinate. vaultRole must match the tool's
// requires_vault_role catalog entry.
func NewPgWhoamiExecutor(brokerClient broker.Client, vaultRole, hostPort, dbName string) *PgWhoamiExecutor {
	return &PgWhoamiExecutor{
		brokerClient: brokerClient,
		vaultRole:    vaultRole,
		hostPort:     hostPort,
		dbName:       dbName,
	}
}

// Execute mints credentials, connects, queries current_user, and closes the
// connection before returning — no connection is held across calls.
func (e *PgWhoamiExecutor) Execute(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	creds, err := e.brokerClient.DatabaseCreds(ctx, e.vaultRole)
	if err != nil {
		return nil, fmt.Errorf("pg_whoami: credential broker unavailable")
	}

	dsn := fmt.Sprintf("host=%s dbname=%s user=%s password=%s sslmode=disable",
		e.hostPort, e.dbName, creds.Username, creds.Password)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg_whoami: connection failed")
	}
	defer db.Close()

	var currentUser string
	if err := db.QueryRowContext(ctx, "select current_user").Scan(&currentUser); err != nil {
		return nil, fmt.Errorf("pg_whoami: query failed")
	}

	return map[string]interface{}{
		"current_user":   currentUser,
		"lease_id":       creds.LeaseID,
		"lease_duration": creds.LeaseDuration,
	}, nil
}
