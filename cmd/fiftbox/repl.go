package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/broxus/fift-playground/executor"
)

const (
	promptMain = "fift> "
	promptMore = "  ... "
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive REPL with a persistent file store",
		Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Words defined on one line and files written with B>file stay visible to
later lines.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Tab completion of dictionary words
  - Multi-line input (end line with \)

Commands:
  :files      list files in the session store
  :rm NAME    remove a file
  :clear      remove all files
  :words      list dictionary words

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	addSessionFlags(cmd)
	cmd.Flags().String("history", "", "History file path (default: ~/.fiftbox_history)")
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".fiftbox_history")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	exec, err := a.executor(ctx)
	if err != nil {
		return err
	}
	session := exec.NewSession(executor.WithDefinitions())
	defer session.Close()

	initial, err := exec.Words()
	if err != nil {
		return err
	}
	words := func() []string {
		if w := session.Words(); len(w) > 0 {
			return w
		}
		return initial
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptMain,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      &wordCompleter{words: words},
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "fiftbox %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", a.cfg.Engine)

	r := &repl{
		session: session,
		stdlib:  a.cfg.Stdlib,
		words:   words,
		p:       &printer{out: rl.Stdout(), errOut: rl.Stderr()},
	}
	return r.loop(ctx, rl)
}

type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

type repl struct {
	session *executor.Session
	stdlib  bool
	words   func() []string
	p       *printer
}

func (r *repl) loop(ctx context.Context, in lineReader) error {
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					in.SetPrompt(promptMain)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.p.errOut)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			in.SetPrompt(promptMore)
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			in.SetPrompt(promptMain)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if strings.HasPrefix(line, ":") {
			r.command(line)
			continue
		}

		res, err := r.session.Run(ctx, line, r.stdlib)
		if err != nil {
			fmt.Fprintf(r.p.errOut, "Error: %v\n", err)
			continue
		}
		r.p.print(res)
		if res.Stdout != "" && !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(r.p.out)
		}
	}
}

func (r *repl) command(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":files":
		for _, name := range r.session.Files() {
			data, _ := r.session.ReadFile(name)
			fmt.Fprintf(r.p.out, "%s\t%d\n", name, len(data))
		}
	case ":rm":
		if len(fields) != 2 {
			fmt.Fprintln(r.p.errOut, "usage: :rm NAME")
			return
		}
		if !r.session.Remove(fields[1]) {
			fmt.Fprintf(r.p.errOut, "no such file: %s\n", fields[1])
		}
	case ":clear":
		r.session.Clear()
	case ":words":
		fmt.Fprintln(r.p.out, strings.Join(r.words(), " "))
	default:
		fmt.Fprintf(r.p.errOut, "unknown command %s (try :files, :rm, :clear, :words)\n", fields[0])
	}
}

// wordCompleter completes the word under the cursor from the dictionary.
type wordCompleter struct {
	words func() []string
}

func (c *wordCompleter) Do(line []rune, pos int) ([][]rune, int) {
	start := pos
	for start > 0 && !isSpace(line[start-1]) {
		start--
	}
	prefix := string(line[start:pos])

	var matches []string
	if strings.HasPrefix(prefix, ":") {
		for _, cmd := range []string{":clear", ":files", ":rm", ":words"} {
			if strings.HasPrefix(cmd, prefix) {
				matches = append(matches, cmd)
			}
		}
	} else if prefix != "" {
		for _, w := range c.words() {
			if strings.HasPrefix(w, prefix) {
				matches = append(matches, w)
			}
		}
	}
	sort.Strings(matches)

	out := make([][]rune, 0, len(matches))
	for _, m := range matches {
		out = append(out, []rune(m[len(prefix):]+" "))
	}
	return out, len([]rune(prefix))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
