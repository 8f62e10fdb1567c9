package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/broxus/fift-playground/engine/minifift"
	"github.com/broxus/fift-playground/engine/wasm"
	"github.com/broxus/fift-playground/executor"
	"github.com/broxus/fift-playground/internal/config"
	"github.com/broxus/fift-playground/interp"
	"github.com/broxus/fift-playground/library"
	"github.com/broxus/fift-playground/provider"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fiftbox [file]",
		Short: "Fift playground with a sandboxed virtual file system",
		Long: `fiftbox - Run Fift programs in an isolated interpreter.

Programs see a virtual file system: files they write themselves, then files
from mounted directories or an allow-listed HTTP source, then the standard
library (embedded, or the .fif files of --library-dir). Nothing else on the
host is reachable.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("engine", config.EngineMini, "Interpreter engine: mini, wasm")
	flags.String("wasm-module", "", "Path to the Fift interpreter module (wasm engine)")
	flags.Bool("no-cache", false, "Disable the wasm compilation cache")
	flags.Uint32("memory-limit", 0, "Wasm guest memory limit in 64KB pages (0 = runtime default)")
	flags.String("library-dir", "", "Directory of .fif files replacing the embedded library")
	flags.Uint64("max-steps", executor.DefaultMaxSteps, "Step budget per run (0 = unlimited)")
	flags.Int("max-depth", executor.DefaultMaxDepth, "Call and include nesting budget (0 = unlimited)")
	flags.BoolP("verbose", "v", false, "Debug logging")

	// Running a file is the default action.
	addRunFlags(root)
	root.RunE = runRun

	root.AddCommand(newRunCmd(), newReplCmd(), newServeCmd(), newLibCmd())
	return root
}

// Execute runs the CLI and exits with the program's exit code.
func Execute() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var exit exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// exitError carries a program's exit code out of a command without printing.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// app holds what every command derives from config and flags.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	lib     *library.Set
	closers []func()
}

// newApp loads the config file, then the environment, then flags that were
// set explicitly.
func newApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("engine") {
		cfg.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("wasm-module") {
		cfg.WasmModule, _ = flags.GetString("wasm-module")
		if !flags.Changed("engine") {
			cfg.Engine = config.EngineWasm
		}
	}
	if flags.Changed("no-cache") {
		cfg.NoCache, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("memory-limit") {
		cfg.WasmMemoryPages, _ = flags.GetUint32("memory-limit")
	}
	if flags.Changed("library-dir") {
		cfg.LibraryDir, _ = flags.GetString("library-dir")
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps, _ = flags.GetUint64("max-steps")
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("stdlib") {
		cfg.Stdlib, _ = flags.GetBool("stdlib")
	}
	if mounts, err := flags.GetStringSlice("mount"); err == nil && len(mounts) > 0 {
		cfg.Mounts = append(cfg.Mounts, mounts...)
	}
	if hosts, err := flags.GetStringSlice("allow-host"); err == nil && len(hosts) > 0 {
		cfg.HTTP.AllowedHosts = append(cfg.HTTP.AllowedHosts, hosts...)
	}
	if flags.Changed("http-base") {
		cfg.HTTP.BaseURL, _ = flags.GetString("http-base")
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	return &app{cfg: cfg, log: logger}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) factory(ctx context.Context) (interp.Factory, error) {
	switch a.cfg.Engine {
	case config.EngineWasm:
		var opts []wasm.Option
		if !a.cfg.NoCache {
			opts = append(opts, wasm.WithDiskCache())
		}
		if a.cfg.WasmMemoryPages > 0 {
			opts = append(opts, wasm.WithMemoryLimit(a.cfg.WasmMemoryPages))
		}
		m, err := wasm.LoadModule(ctx, a.cfg.WasmModule, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := m.Close(context.Background()); err != nil {
				a.log.Warn("close wasm module", "error", err)
			}
		})
		a.log.Debug("loaded wasm module", "path", a.cfg.WasmModule, "memory_pages", a.cfg.WasmMemoryPages)
		return m, nil
	default:
		return minifift.Factory{}, nil
	}
}

// library returns the embedded set, or the set loaded from LibraryDir.
func (a *app) library() (*library.Set, error) {
	if a.lib != nil {
		return a.lib, nil
	}
	if a.cfg.LibraryDir == "" {
		a.lib = library.Default()
		return a.lib, nil
	}
	set, err := library.LoadDir(a.cfg.LibraryDir)
	if err != nil {
		return nil, err
	}
	a.log.Debug("loaded library", "dir", a.cfg.LibraryDir, "files", len(set.Names()))
	a.lib = set
	return set, nil
}

// providers returns the configured external providers chained into one, or
// nil when none is configured. Mounts answer before HTTP.
func (a *app) providers() (provider.Chain, error) {
	var providers provider.Chain
	if len(a.cfg.Mounts) > 0 {
		mounts := make([]provider.Mount, 0, len(a.cfg.Mounts))
		for _, spec := range a.cfg.Mounts {
			m, err := provider.ParseMount(spec)
			if err != nil {
				return nil, err
			}
			mounts = append(mounts, m)
		}
		providers = append(providers, provider.NewDir(mounts))
	}
	if a.cfg.HTTP.BaseURL != "" {
		providers = append(providers, provider.NewHTTP(provider.HTTPConfig{
			BaseURL:      a.cfg.HTTP.BaseURL,
			AllowedHosts: a.cfg.HTTP.AllowedHosts,
			MaxBodySize:  a.cfg.HTTP.MaxBodySize,
		}))
	}
	return providers, nil
}

func (a *app) executor(ctx context.Context) (*executor.Executor, error) {
	factory, err := a.factory(ctx)
	if err != nil {
		return nil, err
	}
	providers, err := a.providers()
	if err != nil {
		return nil, err
	}
	lib, err := a.library()
	if err != nil {
		return nil, err
	}

	opts := []executor.Option{
		executor.WithMaxSteps(a.cfg.MaxSteps),
		executor.WithMaxDepth(a.cfg.MaxDepth),
		executor.WithTimeout(a.cfg.Timeout),
		executor.WithLibrary(lib),
		executor.WithLogger(a.log),
	}
	if len(providers) > 0 {
		opts = append(opts, executor.WithProvider(providers))
	}
	return executor.New(factory, opts...)
}

// addSessionFlags adds the flags that shape the virtual file system and the
// run budget.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", config.DefaultTimeout, "Execution timeout")
	cmd.Flags().Bool("stdlib", true, "Run Fift.fif before the program")
	cmd.Flags().StringSlice("mount", nil, "Mount a host directory read-only: [prefix=]path (repeatable)")
	cmd.Flags().String("http-base", "", "Base URL for files fetched over HTTP")
	cmd.Flags().StringSlice("allow-host", nil, "Allow HTTP file fetches from host (repeatable)")
}
