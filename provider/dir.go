package provider

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const DefaultMaxFileSize = 10 << 20 // 10MB

// Mount maps a file-name prefix to a host directory. An empty prefix mounts
// the directory at the root of the name space.
type Mount struct {
	Prefix   string // Prefix as seen by interpreted code (e.g., "lib")
	HostPath string // Actual directory on the host
}

// DirOption configures a Dir.
type DirOption func(*Dir)

// WithMaxFileSize limits the size of files Dir will read.
func WithMaxFileSize(size int64) DirOption {
	return func(d *Dir) {
		d.maxFileSize = size
	}
}

// Dir serves files from read-only host directory mounts.
type Dir struct {
	mounts      []Mount
	maxFileSize int64
	mu          sync.RWMutex
}

// NewDir creates a provider over the given mounts. Mounts whose host path
// cannot be made absolute are skipped.
func NewDir(mounts []Mount, opts ...DirOption) *Dir {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{
			Prefix:   strings.Trim(m.Prefix, "/"),
			HostPath: hp,
		})
	}
	// Longest prefix first so nested mounts win.
	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i].Prefix) > len(normalized[j].Prefix)
	})

	d := &Dir{mounts: normalized, maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// resolve maps a file name to a host path inside one of the mounts.
func (d *Dir) resolve(name string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	clean := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+name)), "/")

	for _, m := range d.mounts {
		var rel string
		switch {
		case m.Prefix == "":
			rel = clean
		case clean == m.Prefix:
			rel = ""
		case strings.HasPrefix(clean, m.Prefix+"/"):
			rel = strings.TrimPrefix(clean, m.Prefix+"/")
		default:
			continue
		}

		hostPath, err := filepath.Abs(filepath.Join(m.HostPath, filepath.FromSlash(rel)))
		if err != nil {
			return "", errors.New("invalid path")
		}
		if hostPath != m.HostPath && !strings.HasPrefix(hostPath, m.HostPath+string(filepath.Separator)) {
			return "", errors.New("permission denied: path escape attempt")
		}
		return hostPath, nil
	}

	return "", errors.New("permission denied: path not in any mount")
}

// Exists reports whether name maps to a regular file.
func (d *Dir) Exists(name string) bool {
	hostPath, err := d.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(hostPath)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the contents of name.
func (d *Dir) Read(name string) ([]byte, error) {
	hostPath, err := d.resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.New("file not found: " + name)
		}
		return nil, errors.New("stat error: " + err.Error())
	}
	if info.IsDir() {
		return nil, errors.New("is a directory: " + name)
	}
	if d.maxFileSize > 0 && info.Size() > d.maxFileSize {
		return nil, fmt.Errorf("file exceeds max size of %d bytes", d.maxFileSize)
	}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return nil, errors.New("read error: " + err.Error())
	}
	return data, nil
}

// Names lists the regular files below every mount.
func (d *Dir) Names() []string {
	d.mu.RLock()
	mounts := append([]Mount(nil), d.mounts...)
	d.mu.RUnlock()

	var names []string
	for _, m := range mounts {
		filepath.WalkDir(m.HostPath, func(p string, entry fs.DirEntry, err error) error {
			if err != nil || !entry.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(m.HostPath, p)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if m.Prefix != "" {
				rel = m.Prefix + "/" + rel
			}
			names = append(names, rel)
			return nil
		})
	}
	sort.Strings(names)
	return names
}

// HostPaths returns the absolute host directories of all mounts.
func (d *Dir) HostPaths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	paths := make([]string, 0, len(d.mounts))
	for _, m := range d.mounts {
		paths = append(paths, m.HostPath)
	}
	return paths
}

// ParseMount parses "prefix=hostpath" or a bare host path.
func ParseMount(spec string) (Mount, error) {
	if spec == "" {
		return Mount{}, errors.New("empty mount spec")
	}
	prefix, host, ok := strings.Cut(spec, "=")
	if !ok {
		return Mount{HostPath: spec}, nil
	}
	if host == "" {
		return Mount{}, fmt.Errorf("invalid mount spec %q (expected prefix=hostpath)", spec)
	}
	return Mount{Prefix: prefix, HostPath: host}, nil
}
