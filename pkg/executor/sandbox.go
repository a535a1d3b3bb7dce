package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// outputMaxBytes bounds captured stdout from a sandboxed tool module,
// grounded on the teacher's runtime/sandbox/sandbox.go OutputMaxBytes.
const outputMaxBytes = 1024 * 1024

// WasiRunner executes a tool's body as a WASI module instead of in-process
// Go code. Registry.Execute uses it only for mode == "sandbox" calls whose
// tool has a compiled module on disk; mode == "normal" calls always run
// in-process. Grounded on
// runtime/sandbox/sandbox.go's WasiSandbox: deny-by-default filesystem and
// network, memory-paged runtime config, context-deadline time limit.
type WasiRunner struct {
	runtime wazero.Runtime
}

// NewWasiRunner constructs a WASI runtime capped at memoryLimitBytes.
func NewWasiRunner(ctx context.Context, memoryLimitBytes int64) (*WasiRunner, error) {
	cfg := wazero.NewRuntimeConfig()
	if memoryLimitBytes > 0 {
		pages := uint32(memoryLimitBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		cfg = cfg.WithMemoryLimitPages(pages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("executor: instantiate WASI: %w", err)
	}
	return &WasiRunner{runtime: r}, nil
}

// Run compiles and executes moduleBytes, feeding args as JSON on stdin and
// parsing the module's stdout as the JSON-structured tool output. The
// module sees no filesystem and no network access (WASI deny-by-default).
func (s *WasiRunner) Run(ctx context.Context, moduleBytes []byte, args map[string]interface{}, timeLimit time.Duration) (map[string]interface{}, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("executor: marshal sandbox input: %w", err)
	}

	execCtx := ctx
	if timeLimit > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithName("tool-sandbox")

	compiled, err := s.runtime.CompileModule(execCtx, moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("executor: compile sandbox module: %w", err)
	}
	defer func() { _ = compiled.Close(execCtx) }()

	mod, err := s.runtime.InstantiateModule(execCtx, compiled, moduleConfig)
	if err != nil {
		if execCtx.Err() != nil {
			return nil, fmt.Errorf("executor: sandbox execution exceeded time limit %s", timeLimit)
		}
		return nil, fmt.Errorf("executor: sandbox execution failed: %w", err)
	}
	defer func() { _ = mod.Close(execCtx) }()

	if stdout.Len()+stderr.Len() > outputMaxBytes {
		return nil, fmt.Errorf("executor: sandbox output exceeds %d bytes", outputMaxBytes)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("executor: sandbox module did not emit JSON output: %w", err)
	}
	return out, nil
}

// Close releases the underlying WASM runtime.
func (s *WasiRunner) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}
