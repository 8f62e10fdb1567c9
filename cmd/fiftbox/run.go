package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/broxus/fift-playground/executor"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a Fift program once",
		Long: `Run a Fift program with a fresh virtual file system.

Code can be provided via:
  - File argument: fiftbox run script.fif
  - Inline flag: fiftbox run -c '2 2 + .'
  - Stdin: echo '2 2 + .' | fiftbox run

The process exits with the program's exit code: 0 when it finished
normally, 1 when it halted with a false flag or failed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	cmd.Flags().BoolP("watch", "w", false, "Re-run when the file or a mounted directory changes")
	addSessionFlags(cmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	watch, _ := cmd.Flags().GetBool("watch")
	asJSON, _ := cmd.Flags().GetBool("json")

	var filename string
	if len(args) > 0 {
		filename = args[0]
	}
	if watch && filename == "" {
		return errors.New("--watch needs a file argument")
	}

	source, ok, err := readSource(cmd, code, filename)
	if err != nil {
		return err
	}
	if !ok {
		return cmd.Help()
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	exec, err := a.executor(ctx)
	if err != nil {
		return err
	}

	p := &printer{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), json: asJSON}

	if watch {
		providers, _ := a.providers()
		var dirs []string
		for _, prov := range providers {
			if d, ok := prov.(interface{ HostPaths() []string }); ok {
				dirs = append(dirs, d.HostPaths()...)
			}
		}
		return watchAndRun(ctx, filename, dirs, func(src string) {
			if _, err := runOnce(ctx, exec, src, a.cfg.Stdlib, p); err != nil {
				fmt.Fprintf(p.errOut, "Error: %v\n", err)
			}
		})
	}

	exitCode, err := runOnce(ctx, exec, source, a.cfg.Stdlib, p)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return exitError{code: exitCode}
	}
	return nil
}

// readSource picks the program text from -c, the file argument or piped
// stdin. ok is false when there is nothing to run.
func readSource(cmd *cobra.Command, code, filename string) (string, bool, error) {
	switch {
	case code != "":
		return code, true, nil
	case filename != "":
		data, err := os.ReadFile(filename)
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	}

	in := cmd.InOrStdin()
	if f, isFile := in.(*os.File); isFile {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", false, nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", false, err
	}
	return string(data), len(data) > 0, nil
}

// runOnce runs source and prints the result. It returns the exit code the
// process should end with.
func runOnce(ctx context.Context, exec *executor.Executor, source string, stdlib bool, p *printer) (int, error) {
	res, err := exec.Run(ctx, source, stdlib)
	if err != nil {
		return 1, err
	}
	if err := p.print(res); err != nil {
		return 1, err
	}
	if !res.Success {
		return 1, nil
	}
	return *res.ExitCode, nil
}

type printer struct {
	out    io.Writer
	errOut io.Writer
	json   bool
}

func (p *printer) print(res *executor.Result) error {
	if p.json {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	stdout, diagnostic := res.Split()
	fmt.Fprint(p.out, stdout)
	fmt.Fprint(p.errOut, diagnostic)

	if res.Success {
		return nil
	}
	fmt.Fprintf(p.errOut, "Error: %s\n", res.Stderr)
	if pos := res.ErrorPosition; pos != nil {
		fmt.Fprint(p.errOut, formatPosition(pos))
	}
	for _, frame := range res.Backtrace {
		fmt.Fprintf(p.errOut, "  in %s\n", frame)
	}
	return nil
}

// formatPosition renders the failing line with the word underlined.
func formatPosition(pos *executor.ErrorPosition) string {
	prefix := fmt.Sprintf("%s:%d: ", pos.BlockName, pos.LineNumber)
	width := pos.WordEnd - pos.WordStart
	if width < 1 {
		width = 1
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(pos.Line)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", len(prefix)+pos.WordStart))
	b.WriteString(strings.Repeat("^", width))
	b.WriteByte('\n')
	return b.String()
}

const watchDebounce = 100 * time.Millisecond

// watchAndRun runs the file now and again after every change to it or to
// the given directories, until ctx is done.
func watchAndRun(ctx context.Context, filename string, dirs []string, run func(source string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files, so the parent directory is watched.
	target, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filename, err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	rerun := func() {
		data, err := os.ReadFile(target)
		if err != nil {
			return
		}
		run(string(data))
	}
	rerun()

	mounted := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		mounted[filepath.Clean(dir)] = true
	}
	relevant := func(ev fsnotify.Event) bool {
		if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
			return false
		}
		name := filepath.Clean(ev.Name)
		return name == target || mounted[filepath.Dir(name)]
	}

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			rerun()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
	}
}
