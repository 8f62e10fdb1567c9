package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/broxus/fift-playground/library"
)

func newLibCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lib",
		Short: "Inspect the standard library",
		Long: `Inspect the Fift library files every run can include: the files baked
into fiftbox, or the .fif files of --library-dir.

Fift.fif, Stack.fif and Color.fif run on the mini engine. Asm.fif,
FiftExt.fif, Lisp.fif, Lists.fif and TonUtil.fif need a real Fift library
directory and abort with an explanation otherwise.

These files resolve in every run unless a session file or a provider
shadows them.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List library files with their blake2b-256 digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := librarySet(cmd)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, name := range set.Names() {
				data, _ := set.Lookup(name)
				digest, _ := set.Digest(name)
				fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(data), digest)
			}
			return w.Flush()
		},
	}

	cat := &cobra.Command{
		Use:   "cat NAME",
		Short: "Print a library file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := librarySet(cmd)
			if err != nil {
				return err
			}
			data, ok := set.Lookup(args[0])
			if !ok {
				return fmt.Errorf("no library file named %q (try: %v)", args[0], set.Names())
			}
			_, err := cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(list, cat)
	return cmd
}

func librarySet(cmd *cobra.Command) (*library.Set, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	return a.library()
}
