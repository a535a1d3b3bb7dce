// Package executor implements the in-process tool executors (spec C9):
// echo, time_now, math_eval, and the brokered-credential pg_whoami, plus an
// optional WASI-isolated execution path for deployments that want a tool's
// body run out-of-process.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sandboxTimeLimit bounds a single out-of-process tool-body invocation,
// grounded on the teacher's SandboxConfig.CPUTimeLimit.
const sandboxTimeLimit = 5 * time.Second

// Registry dispatches a validated tool call to its implementation by
// tool_id. Tagged-variant dispatch, not per-tool generated types (spec §9,
// "Tools form a polymorphic set ... tagged-variant dispatch ... is
// acceptable").
type Registry struct {
	builtins         map[string]func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
	pgWhoami         *PgWhoamiExecutor
	sandbox          *WasiRunner
	sandboxModuleDir string
}

// NewRegistry builds the built-in tool registry. pgWhoami may be nil if no
// secret broker / database is configured; calling "pg_whoami" then fails
// with a descriptive error rather than panicking.
func NewRegistry(pgWhoami *PgWhoamiExecutor) *Registry {
	r := &Registry{
		builtins: make(map[string]func(context.Context, map[string]interface{}) (map[string]interface{}, error)),
		pgWhoami: pgWhoami,
	}
	r.builtins["echo"] = echo
	r.builtins["time_now"] = timeNow
	r.builtins["math_eval"] = mathEval
	return r
}

// WithSandbox attaches runner and moduleDir, a directory of per-tool
// compiled WASM bodies named "<tool_id>.wasm". Once attached, a mode ==
// "sandbox" call for a tool_id with a matching module file runs
// out-of-process under WASI isolation instead of in the gateway's own
// process; a tool_id with no module on disk keeps running in-process.
func (r *Registry) WithSandbox(runner *WasiRunner, moduleDir string) *Registry {
	r.sandbox = runner
	r.sandboxModuleDir = moduleDir
	return r
}

// Execute runs toolID against validated args and returns its structured
// output. mode is the PDP decision's execution mode (spec §4.6); it only
// affects dispatch when a sandbox module is configured for toolID. Any
// failure is returned as an error for the caller to fold into the per-tool
// {"error": ...} output (spec §4.7 step 3, §4.9).
func (r *Registry) Execute(ctx context.Context, mode, toolID string, args map[string]interface{}) (map[string]interface{}, error) {
	if mode == "sandbox" {
		if out, ran, err := r.runSandboxed(ctx, toolID, args); ran {
			return out, err
		}
	}

	if toolID == "pg_whoami" {
		if r.pgWhoami == nil {
			return nil, fmt.Errorf("pg_whoami not configured")
		}
		return r.pgWhoami.Execute(ctx, args)
	}

	fn, ok := r.builtins[toolID]
	if !ok {
		return nil, fmt.Errorf("unknown tool_id: %s", toolID)
	}
	return fn(ctx, args)
}

// runSandboxed loads toolID's compiled WASM body from sandboxModuleDir and
// runs it under the attached WasiRunner. ran is false (and the caller falls
// through to the in-process builtin) whenever no sandbox is attached or no
// module file exists for toolID.
func (r *Registry) runSandboxed(ctx context.Context, toolID string, args map[string]interface{}) (out map[string]interface{}, ran bool, err error) {
	if r.sandbox == nil || r.sandboxModuleDir == "" {
		return nil, false, nil
	}
	moduleBytes, readErr := os.ReadFile(filepath.Join(r.sandboxModuleDir, toolID+".wasm"))
	if readErr != nil {
		return nil, false, nil
	}
	out, err = r.sandbox.Run(ctx, moduleBytes, args, sandboxTimeLimit)
	return out, true, err
}

func echo(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	text, ok := args["text"]
	if !ok {
		return nil, fmt.Errorf("missing required argument: text")
	}
	return map[string]interface{}{"text": text}, nil
}

func timeNow(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"utc": time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")}, nil
}

func mathEval(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	expr, ok := args["expression"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required argument: expression")
	}
	value, err := EvalExpression(expr)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"value": value}, nil
}
