// Package config loads fiftbox settings from a YAML file and FIFTBOX_*
// environment variables. Command-line flags are applied by the caller on
// top of the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/broxus/fift-playground/executor"
)

const (
	EngineMini = "mini"
	EngineWasm = "wasm"

	DefaultAddr       = ":8080"
	DefaultTimeout    = 30 * time.Second
	DefaultSessionTTL = 15 * time.Minute
)

type Config struct {
	Engine     string `yaml:"engine"`
	WasmModule string `yaml:"wasm_module"`
	NoCache    bool   `yaml:"no_cache"`
	// WasmMemoryPages caps guest memory in 64KB pages; 0 keeps the runtime
	// default.
	WasmMemoryPages uint32 `yaml:"wasm_memory_pages"`
	// LibraryDir replaces the embedded library with the .fif files found
	// there.
	LibraryDir string        `yaml:"library_dir"`
	MaxSteps   uint64        `yaml:"max_steps"`
	MaxDepth   int           `yaml:"max_depth"`
	Timeout    time.Duration `yaml:"timeout"`
	Stdlib     bool          `yaml:"stdlib"`
	Mounts     []string      `yaml:"mounts"`
	HTTP       HTTP          `yaml:"http"`
	Server     Server        `yaml:"server"`
	Debug      bool          `yaml:"debug"`
}

// HTTP configures the remote file provider. It is disabled while BaseURL is
// empty.
type HTTP struct {
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts"`
	MaxBodySize  int64    `yaml:"max_body_size"`
}

type Server struct {
	Addr        string        `yaml:"addr"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

func Default() Config {
	return Config{
		Engine:   EngineMini,
		MaxSteps: executor.DefaultMaxSteps,
		MaxDepth: executor.DefaultMaxDepth,
		Timeout:  DefaultTimeout,
		Stdlib:   true,
		Server: Server{
			Addr:       DefaultAddr,
			SessionTTL: DefaultSessionTTL,
		},
	}
}

// Load reads path over the defaults and then applies the environment. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from FIFTBOX_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.str("FIFTBOX_ENGINE", &c.Engine)
	env.str("FIFTBOX_WASM_MODULE", &c.WasmModule)
	env.boolean("FIFTBOX_NO_CACHE", &c.NoCache)
	env.pages("FIFTBOX_WASM_MEMORY_PAGES", &c.WasmMemoryPages)
	env.str("FIFTBOX_LIBRARY_DIR", &c.LibraryDir)
	env.unsigned("FIFTBOX_MAX_STEPS", &c.MaxSteps)
	env.integer("FIFTBOX_MAX_DEPTH", &c.MaxDepth)
	env.duration("FIFTBOX_TIMEOUT", &c.Timeout)
	env.boolean("FIFTBOX_STDLIB", &c.Stdlib)
	env.list("FIFTBOX_MOUNTS", &c.Mounts)
	env.str("FIFTBOX_HTTP_BASE_URL", &c.HTTP.BaseURL)
	env.list("FIFTBOX_HTTP_ALLOWED_HOSTS", &c.HTTP.AllowedHosts)
	env.str("FIFTBOX_ADDR", &c.Server.Addr)
	env.duration("FIFTBOX_SESSION_TTL", &c.Server.SessionTTL)
	env.integer("FIFTBOX_MAX_SESSIONS", &c.Server.MaxSessions)
	env.boolean("FIFTBOX_DEBUG", &c.Debug)

	return errors.Join(env.errs...)
}

func (c *Config) Validate() error {
	switch c.Engine {
	case EngineMini:
	case EngineWasm:
		if c.WasmModule == "" {
			return errors.New("config: wasm engine requires wasm_module")
		}
	default:
		return fmt.Errorf("config: unknown engine %q (expected %s or %s)", c.Engine, EngineMini, EngineWasm)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("config: max_depth must not be negative, got %d", c.MaxDepth)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative, got %v", c.Timeout)
	}
	if c.HTTP.BaseURL != "" && len(c.HTTP.AllowedHosts) == 0 {
		return errors.New("config: http.base_url requires http.allowed_hosts")
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (r *envReader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("config: invalid %s value %q: %w", key, value, err))
}

func (r *envReader) str(key string, dst *string) {
	if value, ok := r.get(key); ok {
		*dst = value
	}
}

func (r *envReader) list(key string, dst *[]string) {
	if value, ok := r.get(key); ok {
		*dst = parseList(value)
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	if value, ok := r.get(key); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			r.fail(key, value, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) unsigned(key string, dst *uint64) {
	if value, ok := r.get(key); ok {
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			r.fail(key, value, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) pages(key string, dst *uint32) {
	if value, ok := r.get(key); ok {
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			r.fail(key, value, err)
			return
		}
		*dst = uint32(n)
	}
}

func (r *envReader) integer(key string, dst *int) {
	if value, ok := r.get(key); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			r.fail(key, value, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if value, ok := r.get(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			r.fail(key, value, err)
			return
		}
		*dst = d
	}
}

func parseList(raw string) []string {
	fields := strings.Split(raw, ",")
	items := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
