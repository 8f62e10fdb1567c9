// Package wasm runs a Fift interpreter compiled to WebAssembly (WASI
// preview1) under wazero.
//
// The guest reaches the playground's virtual file system and reports its
// failure state through the host module "fift_env":
//
//	now_ms() i64
//	file_exists(name, name_len) i32
//	file_size(name, name_len) i64                     // -1 when missing
//	read_file(name, name_len, offset i64, len, buf) i32 // status code
//	write_file(name, name_len, data, data_len) i32
//	include(name, name_len) i32                       // block id or -1
//	block_size(id) i64
//	block_read(id, buf, cap) i32                      // bytes read (at most 64 KiB), 0 at end
//	source_blocks() i32                               // ids 0..n-1 run in order
//	report_error(msg, msg_len)                        // empty: last host error
//	report_position(offset i64, name, name_len, line, line_len, line_no, word_start, word_end)
//	report_frame(dump, dump_len)                      // innermost first
//	report_word(name, name_len)
//
// Guest stdout goes to the primary output path and stderr to the diagnostic
// path. The run budget is passed as "--max-steps N --max-depth N".
package wasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/broxus/fift-playground/interp"
)

// HostModuleName is the import module the guest links against.
const HostModuleName = "fift_env"

var ErrModuleClosed = errors.New("wasm: module closed")

// Option configures a Module.
type Option func(*moduleConfig)

type moduleConfig struct {
	name             string
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = wazero default (4GB)
}

func defaultModuleConfig() moduleConfig {
	return moduleConfig{name: "wasm"}
}

// WithDiskCache enables a persistent compilation cache. Optionally provide a
// directory; otherwise XDG_CACHE_HOME/fiftbox or ~/.cache/fiftbox is used.
func WithDiskCache(dir ...string) Option {
	return func(c *moduleConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum guest memory in 64KB pages.
func WithMemoryLimit(pages uint32) Option {
	return func(c *moduleConfig) {
		c.memoryLimitPages = pages
	}
}

// WithName sets the name reported by the factory.
func WithName(name string) Option {
	return func(c *moduleConfig) {
		c.name = name
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
)

// Module is a compiled interpreter. It implements interp.Factory; every
// engine it creates instantiates a fresh guest.
type Module struct {
	cfg      moduleConfig
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule

	mu     sync.RWMutex
	closed bool
}

// NewModule compiles wasmBytes. Invalid modules fail here rather than on the
// first run.
func NewModule(ctx context.Context, wasmBytes []byte, opts ...Option) (*Module, error) {
	cfg := defaultModuleConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		dir := cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	cleanup := func() {
		rt.Close(ctx)
		if cache != nil {
			cache.Close(ctx)
		}
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		cleanup()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	if err := instantiateHost(ctx, rt); err != nil {
		cleanup()
		return nil, fmt.Errorf("instantiate %s: %w", HostModuleName, err)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("compile interpreter: %w", err)
	}

	return &Module{cfg: cfg, runtime: rt, cache: cache, compiled: compiled}, nil
}

// LoadModule reads and compiles the module at path.
func LoadModule(ctx context.Context, path string, opts ...Option) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read interpreter module: %w", err)
	}
	return NewModule(ctx, data, opts...)
}

func (m *Module) Name() string { return m.cfg.name }

// New prepares an engine. The guest is instantiated when the engine runs.
func (m *Module) New(env interp.Environment, out interp.Output, cfg interp.Config) (interp.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrModuleClosed
	}
	if env == nil || out == nil {
		return nil, errors.New("wasm: environment and output are required")
	}
	return &Engine{module: m, state: newGuestState(env, out), cfg: cfg}, nil
}

// Close releases the runtime and the compilation cache.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if err := m.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if m.cache != nil {
		if err := m.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "fiftbox")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "fiftbox")
	}
	return filepath.Join(os.TempDir(), "fiftbox-cache")
}

var _ interp.Factory = (*Module)(nil)
