package oracle

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/snow-ghost/bindopt/core"
)

// WASMConfig configures a sandboxed scoring plugin.
type WASMConfig struct {
	Path        string        `yaml:"path" toml:"path" json:"path"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	MemoryPages uint32        `yaml:"memory_pages" toml:"memory_pages" json:"memory_pages"`
}

// WASMOracle scores pairs with a WebAssembly plugin. The plugin exports
// "memory" and score(candPtr, candLen, targetPtr, targetLen i32) f64. The
// host writes the candidate at offset 0 followed by the target.
type WASMOracle struct {
	runtime wazero.Runtime
	module  wazero.CompiledModule
	timeout time.Duration

	mu sync.Mutex
}

// LoadWASMOracle compiles the plugin at config.Path.
func LoadWASMOracle(ctx context.Context, config WASMConfig) (*WASMOracle, error) {
	code, err := os.ReadFile(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm plugin: %w", err)
	}
	return NewWASMOracle(ctx, code, config)
}

// NewWASMOracle compiles code into a scoring plugin.
func NewWASMOracle(ctx context.Context, code []byte, config WASMConfig) (*WASMOracle, error) {
	if config.MemoryPages == 0 {
		config.MemoryPages = 64 // 4MB
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(config.MemoryPages).
		WithCloseOnContextDone(true))

	// plugins built against WASI import it even when they never do I/O
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	module, err := runtime.CompileModule(ctx, code)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}
	if _, ok := module.ExportedFunctions()["score"]; !ok {
		runtime.Close(ctx)
		return nil, fmt.Errorf("module does not export 'score' function")
	}

	return &WASMOracle{runtime: runtime, module: module, timeout: config.Timeout}, nil
}

// Score implements core.FitnessOracle
func (o *WASMOracle) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	instance, err := o.runtime.InstantiateModule(execCtx, o.module, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer instance.Close(execCtx)

	score := instance.ExportedFunction("score")
	mem := instance.Memory()
	if mem == nil {
		return nil, fmt.Errorf("module has no memory")
	}

	out := make([]float64, len(pairs))
	for i, p := range pairs {
		v, err := o.scoreOne(execCtx, mem, score, p)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (o *WASMOracle) scoreOne(ctx context.Context, mem api.Memory, score api.Function, p core.Pair) (float64, error) {
	candLen := uint32(len(p.Candidate))
	targetLen := uint32(len(p.Target))
	if candLen+targetLen > mem.Size() {
		return 0, fmt.Errorf("pair of %d bytes exceeds memory size %d", candLen+targetLen, mem.Size())
	}
	if !mem.Write(0, []byte(p.Candidate)) || !mem.Write(candLen, []byte(p.Target)) {
		return 0, fmt.Errorf("failed to write pair to memory")
	}

	results, err := score.Call(ctx, 0, uint64(candLen), uint64(candLen), uint64(targetLen))
	if err != nil {
		return 0, fmt.Errorf("failed to call score function: %w", err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("score function should return one f64, got %d results", len(results))
	}
	return api.DecodeF64(results[0]), nil
}

// Close releases the runtime.
func (o *WASMOracle) Close(ctx context.Context) error {
	return o.runtime.Close(ctx)
}
