package provider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirRead(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.fif"), []byte("2 2 + ."), 0644)

	d := NewDir([]Mount{{HostPath: dir}})

	if !d.Exists("main.fif") {
		t.Fatal("expected main.fif to exist")
	}
	content, err := d.Read("main.fif")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(content) != "2 2 + ." {
		t.Errorf("unexpected content %q", content)
	}
}

func TestDirPrefixMount(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "util.fif"), []byte("util"), 0644)

	d := NewDir([]Mount{{Prefix: "/lib/", HostPath: dir}})

	if !d.Exists("lib/sub/util.fif") {
		t.Error("expected lib/sub/util.fif to exist")
	}
	if d.Exists("sub/util.fif") {
		t.Error("file outside the prefix should not resolve")
	}
	if d.Exists("lib/sub") {
		t.Error("directories are not files")
	}
	if _, err := d.Read("lib/sub"); err == nil {
		t.Error("expected error reading a directory")
	}
}

func TestDirPathEscape(t *testing.T) {
	root := t.TempDir()
	inner := filepath.Join(root, "inner")
	os.MkdirAll(inner, 0755)
	os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0644)

	d := NewDir([]Mount{{Prefix: "lib", HostPath: inner}})

	for _, name := range []string{"lib/../secret.txt", "lib/../../secret.txt", "../secret.txt"} {
		if d.Exists(name) {
			t.Errorf("%q should not escape the mount", name)
		}
		if data, err := d.Read(name); err == nil {
			t.Errorf("%q read %q, expected failure", name, data)
		}
	}
}

func TestDirNotInMount(t *testing.T) {
	d := NewDir(nil)
	_, err := d.Read("anything.fif")
	if err == nil || !strings.Contains(err.Error(), "not in any mount") {
		t.Errorf("expected mount error, got %v", err)
	}
}

func TestDirMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "big.fif"), []byte(strings.Repeat("x", 100)), 0644)

	d := NewDir([]Mount{{HostPath: dir}}, WithMaxFileSize(10))
	if _, err := d.Read("big.fif"); err == nil {
		t.Error("expected size limit error")
	}
}

func TestDirNames(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	os.WriteFile(filepath.Join(a, "one.fif"), nil, 0644)
	os.MkdirAll(filepath.Join(b, "x"), 0755)
	os.WriteFile(filepath.Join(b, "x", "two.fif"), nil, 0644)

	d := NewDir([]Mount{{HostPath: a}, {Prefix: "lib", HostPath: b}})
	names := d.Names()

	expected := []string{"lib/x/two.fif", "one.fif"}
	if strings.Join(names, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, names)
	}
}

func TestParseMount(t *testing.T) {
	tests := []struct {
		spec    string
		want    Mount
		wantErr bool
	}{
		{spec: "./libs", want: Mount{HostPath: "./libs"}},
		{spec: "lib=./libs", want: Mount{Prefix: "lib", HostPath: "./libs"}},
		{spec: "lib=", wantErr: true},
		{spec: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMount(tt.spec)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMount(%q) expected error", tt.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMount(%q) unexpected error: %v", tt.spec, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMount(%q) = %+v, want %+v", tt.spec, got, tt.want)
		}
	}
}
