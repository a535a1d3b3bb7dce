// Package gateway implements the invocation pipeline (spec C7): the
// register/nonce/authenticate handshake and the policy-mediated secure_call
// dispatch, orchestrating every other package. Grounded directly on
// original_source/.../main.py, translated from FastAPI handlers to plain Go
// methods the HTTP layer (pkg/api) calls into.
package gateway

import (
	"time"

	"github.com/inneri/gateway/pkg/audit"
	"github.com/inneri/gateway/pkg/catalog"
	"github.com/inneri/gateway/pkg/executor"
	"github.com/inneri/gateway/pkg/identity"
	"github.com/inneri/gateway/pkg/nonce"
	"github.com/inneri/gateway/pkg/pdp"
	"github.com/inneri/gateway/pkg/receipts"
	"github.com/inneri/gateway/pkg/tokens"
)

// Gateway wires every C1-C9 component into the operations spec §4 names.
// It holds no HTTP concerns — pkg/api translates requests/responses at the
// boundary and maps Gateway errors to RFC 7807 status codes.
type Gateway struct {
	Identity  identity.Store
	Catalog   catalog.Store
	Validator *catalog.Validator
	Nonces    nonce.Registry
	PDP       pdp.Client
	Executors *executor.Registry
	Audit     audit.Store
	Tokens    *tokens.Manager
	Receipts  *receipts.Issuer
}

// New constructs a Gateway from its component dependencies. Every field is
// required except Executors, which callers always provide via
// executor.NewRegistry (possibly with a nil pg_whoami executor).
func New(
	identityStore identity.Store,
	catalogStore catalog.Store,
	validator *catalog.Validator,
	nonces nonce.Registry,
	pdpClient pdp.Client,
	executors *executor.Registry,
	auditStore audit.Store,
	tokenManager *tokens.Manager,
	receiptIssuer *receipts.Issuer,
) *Gateway {
	return &Gateway{
		Identity:  identityStore,
		Catalog:   catalogStore,
		Validator: validator,
		Nonces:    nonces,
		PDP:       pdpClient,
		Executors: executors,
		Audit:     auditStore,
		Tokens:    tokenManager,
		Receipts:  receiptIssuer,
	}
}

func strPtr(s string) *string { return &s }
func now() time.Time          { return time.Now().UTC() }
