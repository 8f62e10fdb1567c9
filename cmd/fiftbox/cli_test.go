package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/broxus/fift-playground/executor"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func executeSplit(args ...string) (stdout, stderr string, err error) {
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"fiftbox",
		"virtual file system",
		"run",
		"repl",
		"serve",
		"lib",
		"--engine",
		"--wasm-module",
		"--max-steps",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--code",
		"--timeout",
		"--stdlib",
		"--mount",
		"--json",
		"--watch",
		"--allow-host",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("run help output should contain %q", phrase)
		}
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "repl", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"--history", "Command history", ":files", ":rm", ":clear"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("repl help output should contain %q", phrase)
		}
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "serve", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"--addr", "--session-ttl", "/execute", "/sessions", "/library", "/health"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("serve help output should contain %q", phrase)
		}
	}
}

func TestCLIRunInline(t *testing.T) {
	stdout, _, err := executeSplit("run", "-c", "2 2 + .")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "4 " {
		t.Errorf("expected '4 ', got %q", stdout)
	}
}

func TestCLIRootRunsCode(t *testing.T) {
	stdout, _, err := executeSplit("-c", "-3 abs .")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "3 " {
		t.Errorf("expected '3 ', got %q", stdout)
	}
}

func TestCLIRunStdin(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader("6 7 * ."))
	root.SetArgs([]string{"run"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "42 " {
		t.Errorf("expected '42 ', got %q", out.String())
	}
}

func TestCLIRunNoStdlib(t *testing.T) {
	_, stderr, err := executeSplit("run", "--stdlib=false", "-c", "-3 abs .")
	var exit exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if !strings.Contains(stderr, "abs") {
		t.Errorf("expected error to name abs, got %q", stderr)
	}
}

func TestCLIRunError(t *testing.T) {
	_, stderr, err := executeSplit("run", "-c", "{ nosuchword } : broken broken")
	var exit exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	for _, phrase := range []string{"Error:", "nosuchword", "<stdin>:1:", "^"} {
		if !strings.Contains(stderr, phrase) {
			t.Errorf("stderr should contain %q, got:\n%s", phrase, stderr)
		}
	}
}

func TestCLIRunHaltExitCode(t *testing.T) {
	stdout, _, err := executeSplit("run", "-c", `"bye" type 1 halt`)
	var exit exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if stdout != "bye" {
		t.Errorf("expected 'bye', got %q", stdout)
	}
}

func TestCLIRunJSON(t *testing.T) {
	stdout, _, err := executeSplit("run", "--json", "-c", `"x" warn 1 .`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var res executor.Result
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("invalid json %q: %v", stdout, err)
	}
	if !res.Success || res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Stdout != "x1 " || len(res.StderrRanges) != 1 {
		t.Errorf("unexpected output: %q %v", res.Stdout, res.StderrRanges)
	}
}

func TestCLIRunFileWithMount(t *testing.T) {
	libDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(libDir, "square.fif"), []byte("{ dup * } : square\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(t.TempDir(), "main.fif")
	if err := os.WriteFile(script, []byte(`"lib/square.fif" include 12 square .`), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := executeSplit("run", "--mount", "lib="+libDir, script)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, stderr)
	}
	if stdout != "144 " {
		t.Errorf("expected '144 ', got %q", stdout)
	}
}

func TestCLIRunMissingFile(t *testing.T) {
	_, _, err := executeSplit("run", filepath.Join(t.TempDir(), "absent.fif"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestCLIWatchNeedsFile(t *testing.T) {
	_, _, err := executeSplit("run", "--watch", "-c", "1 .")
	if err == nil || !strings.Contains(err.Error(), "--watch") {
		t.Fatalf("expected --watch error, got %v", err)
	}
}

func TestCLIBadEngine(t *testing.T) {
	_, _, err := executeSplit("run", "--engine", "jit", "-c", "1 .")
	if err == nil || !strings.Contains(err.Error(), "unknown engine") {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestCLIWasmModuleMissing(t *testing.T) {
	_, _, err := executeSplit("run", "--wasm-module", filepath.Join(t.TempDir(), "fift.wasm"), "-c", "1 .")
	if err == nil || !strings.Contains(err.Error(), "read interpreter module") {
		t.Fatalf("expected module read error, got %v", err)
	}
}

func TestCLIConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fiftbox.yaml")
	if err := os.WriteFile(path, []byte("stdlib: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := executeSplit("run", "--config", path, "-c", "5 1+ .")
	var exit exitError
	if !errors.As(err, &exit) {
		t.Fatalf("expected 1+ to be undefined without stdlib, got %v", err)
	}

	stdout, _, err := executeSplit("run", "--config", path, "--stdlib", "-c", "5 1+ .")
	if err != nil {
		t.Fatalf("flag should override config: %v", err)
	}
	if stdout != "6 " {
		t.Errorf("expected '6 ', got %q", stdout)
	}
}

func TestCLILibList(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "lib", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := []string{
		"Asm.fif", "Color.fif", "Fift.fif", "FiftExt.fif",
		"Lisp.fif", "Lists.fif", "Stack.fif", "TonUtil.fif",
	}
	for _, name := range names {
		if !strings.Contains(output, name) {
			t.Errorf("lib list should contain %q", name)
		}
	}
}

func TestCLILibraryDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Fift.fif"), []byte("{ 100 + } : 1+\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := executeSplit("run", "--library-dir", dir, "-c", "5 1+ .")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, stderr)
	}
	if stdout != "105 " {
		t.Errorf("expected the directory's Fift.fif to run, got %q", stdout)
	}

	output, err := executeCommand(newRootCmd(), "lib", "list", "--library-dir", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Fift.fif") || strings.Contains(output, "Stack.fif") {
		t.Errorf("lib list should show only the directory's files, got %q", output)
	}

	_, _, err = executeSplit("run", "--library-dir", filepath.Join(dir, "missing"), "-c", "1 .")
	if err == nil {
		t.Fatal("expected error for a missing library directory")
	}
}

func TestNewAppWasmFlags(t *testing.T) {
	root := newRootCmd()
	if err := root.ParseFlags([]string{"--wasm-module", "fift.wasm", "--memory-limit", "512", "--no-cache"}); err != nil {
		t.Fatal(err)
	}
	a, err := newApp(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.cfg.Engine != "wasm" || a.cfg.WasmMemoryPages != 512 || !a.cfg.NoCache {
		t.Errorf("flags not applied: %+v", a.cfg)
	}
}

func TestCLILibCat(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "lib", "cat", "Fift.fif")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, ": abs") {
		t.Errorf("expected Fift.fif content, got %q", output)
	}

	_, err = executeCommand(newRootCmd(), "lib", "cat", "Nope.fif")
	if err == nil {
		t.Fatal("expected error for unknown file")
	}
}

func TestFormatPosition(t *testing.T) {
	got := formatPosition(&executor.ErrorPosition{
		BlockName:  "<stdin>",
		Line:       "1 foo 2",
		LineNumber: 1,
		WordStart:  2,
		WordEnd:    5,
	})
	want := "<stdin>:1: 1 foo 2\n" +
		"             ^^^\n"
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}

// =============================================================================
// REPL
// =============================================================================

type scriptedReader struct {
	lines   []string
	prompts []string
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) SetPrompt(p string) { r.prompts = append(r.prompts, p) }

func newTestRepl(t *testing.T) (*repl, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	exec := newTestExecutor(t)
	session := exec.NewSession(executor.WithDefinitions())
	t.Cleanup(func() { session.Close() })

	var out, errOut bytes.Buffer
	return &repl{
		session: session,
		stdlib:  true,
		words:   session.Words,
		p:       &printer{out: &out, errOut: &errOut},
	}, &out, &errOut
}

func TestReplFilesPersist(t *testing.T) {
	r, out, errOut := newTestRepl(t)
	in := &scriptedReader{lines: []string{
		`"hello" $>B "greeting" B>file`,
		`"greeting" file>B B>$ type`,
		":files",
		"exit",
		"1 .",
	}}

	if err := r.loop(t.Context(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected stderr: %q", errOut.String())
	}
	if !strings.Contains(out.String(), "hello\n") {
		t.Errorf("expected hello, got %q", out.String())
	}
	if !strings.Contains(out.String(), "greeting\t5") {
		t.Errorf("expected file listing, got %q", out.String())
	}
	if strings.Contains(out.String(), "1 ") {
		t.Error("lines after exit should not run")
	}
}

func TestReplEOFKeepsStdoutClean(t *testing.T) {
	r, out, errOut := newTestRepl(t)
	in := &scriptedReader{lines: []string{`"ok" type`}}

	if err := r.loop(t.Context(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "ok\n" {
		t.Errorf("stdout = %q, want %q", out.String(), "ok\n")
	}
	if errOut.String() != "\n" {
		t.Errorf("stderr = %q, want a single newline", errOut.String())
	}
}

func TestReplDefinitionsPersist(t *testing.T) {
	r, out, errOut := newTestRepl(t)
	in := &scriptedReader{lines: []string{
		`{ dup * } : sq`,
		`3 sq .`,
		":words",
	}}

	if err := r.loop(t.Context(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(errOut.String(), "Error") {
		t.Errorf("unexpected stderr: %q", errOut.String())
	}
	if !strings.Contains(out.String(), "9 ") {
		t.Errorf("expected 9, got %q", out.String())
	}
	if !slices.Contains(strings.Fields(out.String()), "sq") {
		t.Errorf("expected sq in word list, got %q", out.String())
	}
}

func TestReplMultiLine(t *testing.T) {
	r, out, _ := newTestRepl(t)
	in := &scriptedReader{lines: []string{
		`{ dup * } : sq \`,
		`7 sq .`,
	}}

	if err := r.loop(t.Context(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "49 ") {
		t.Errorf("expected 49, got %q", out.String())
	}
	if len(in.prompts) != 2 || in.prompts[0] != promptMore || in.prompts[1] != promptMain {
		t.Errorf("unexpected prompts: %q", in.prompts)
	}
}

func TestReplCommands(t *testing.T) {
	r, out, errOut := newTestRepl(t)
	r.session.WriteFile("a", []byte("1"))
	r.session.WriteFile("b", []byte("22"))

	in := &scriptedReader{lines: []string{":rm a", ":rm a", ":files", ":clear", ":files", ":bogus", "dup"}}
	if err := r.loop(t.Context(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.String() != "b\t2\n" {
		t.Errorf("unexpected listing: %q", out.String())
	}
	for _, phrase := range []string{"no such file: a", "unknown command :bogus", "Error:"} {
		if !strings.Contains(errOut.String(), phrase) {
			t.Errorf("stderr should contain %q, got %q", phrase, errOut.String())
		}
	}
}

func TestWordCompleter(t *testing.T) {
	c := &wordCompleter{words: func() []string { return []string{"dup", "drop", "2dup", "swap"} }}

	tests := []struct {
		line   string
		want   []string
		length int
	}{
		{"1 d", []string{"rop ", "up "}, 1},
		{"1 dr", []string{"op "}, 2},
		{"1 ", nil, 0},
		{"x", nil, 1},
		{":f", []string{"iles "}, 2},
	}

	for _, tt := range tests {
		got, length := c.Do([]rune(tt.line), len([]rune(tt.line)))
		var gotStr []string
		for _, g := range got {
			gotStr = append(gotStr, string(g))
		}
		if strings.Join(gotStr, ",") != strings.Join(tt.want, ",") || length != tt.length {
			t.Errorf("Do(%q) = %q, %d; want %q, %d", tt.line, gotStr, length, tt.want, tt.length)
		}
	}
}
