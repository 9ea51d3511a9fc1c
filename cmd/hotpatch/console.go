package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console <file>",
		Short: "Open an interactive console over a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openConsole(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			s := &session{c: c, file: args[0]}
			plain, _ := cmd.Flags().GetBool("plain")
			if !plain && term.IsTerminal(int(os.Stdin.Fd())) {
				return runInteractive(ctx, s)
			}
			return runLines(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("interp", false, "run on the IR interpreter when possible")
	cmd.Flags().Bool("plain", false, "line mode even on a terminal")
	return cmd
}

// runLines is the console used when stdin is not a terminal: one input
// line per request, one output block per line.
func runLines(ctx context.Context, s *session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		res, err := s.handle(ctx, sc.Text())
		if err == errQuit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if res != "" {
			fmt.Fprintln(out, res)
		}
	}
	return sc.Err()
}
