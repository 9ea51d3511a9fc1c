package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/hotpatch/build"
	"github.com/wippyai/hotpatch/console"
	"github.com/wippyai/hotpatch/fingerprint"
	"github.com/wippyai/hotpatch/lang"
	"github.com/wippyai/hotpatch/toolchain"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hotpatch",
		Short: "Compile contract modules and inject code into them",
		Long: `hotpatch compiles contract modules with a dependency-aware cache and
runs console patches against them: arbitrary statements and calls to
internal functions, without recompiling the module.`,
		SilenceUsage: true,
	}
	root.Version = lang.DefaultVersion

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./hotpatch.{toml,yaml})")
	pf.String("cache-dir", "", "cache directory (default user cache dir)")
	pf.Bool("no-cache", false, "disable the compilation cache")
	pf.StringSlice("search-path", nil, "import search path, repeatable")
	pf.Bool("optimize", true, "optimize IR before assembling")
	pf.Bool("alt-codegen", false, "use the alternate lowering path")
	pf.BoolP("verbose", "v", false, "log pipeline events to stderr")

	root.AddCommand(
		newCompileCmd(),
		newEvalCmd(),
		newCallCmd(),
		newFingerprintCmd(),
		newCacheCmd(),
		newConsoleCmd(),
	)
	return root
}

func loadModule(cmd *cobra.Command, file string) (*build.Result, *appConfig, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	b, err := cfg.builder()
	if err != nil {
		return nil, nil, err
	}
	res, err := b.Load(file)
	if err != nil {
		return nil, nil, err
	}
	return res, cfg, nil
}

func openConsole(ctx context.Context, cmd *cobra.Command, file string) (*console.Console, error) {
	res, cfg, err := loadModule(cmd, file)
	if err != nil {
		return nil, err
	}
	base, err := res.Context()
	if err != nil {
		return nil, err
	}
	log, err := cfg.logger()
	if err != nil {
		return nil, err
	}
	interp, _ := cmd.Flags().GetBool("interp")
	return console.New(ctx, base, console.UseInterpreter(interp), console.WithLogger(log))
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a module and report its cache key and ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := loadModule(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			m := res.Module
			fmt.Fprintf(out, "module:      %s\n", m.Name)
			fmt.Fprintf(out, "producer:    %s\n", m.Producer)
			fmt.Fprintf(out, "bytecode:    %d bytes\n", len(m.Bytecode))
			fmt.Fprintf(out, "fingerprint: %s\n", res.Fingerprint)
			fmt.Fprintf(out, "cache key:   %s\n", res.Key)
			fmt.Fprintf(out, "cached:      %t\n", res.Cached)
			fmt.Fprintf(out, "compiled:    %s\n", strings.Join(m.Compiled, ", "))
			for _, key := range slices.Sorted(maps.Keys(m.AssignedIDs)) {
				fmt.Fprintf(out, "  #%d %s\n", m.AssignedIDs[key], key)
			}
			return nil
		},
	}
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <file> <statement>",
		Short: "Evaluate a statement against a module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openConsole(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			defer c.Close(ctx)
			res, err := c.Eval(ctx, args[1])
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().Bool("interp", false, "run on the IR interpreter when possible")
	return cmd
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <file> <function> [args...]",
		Short: "Call an internal function of a module",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseArgs(args[2:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := openConsole(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			defer c.Close(ctx)
			res, err := c.Call(ctx, args[1], vals...)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().Bool("interp", false, "run on the IR interpreter when possible")
	return cmd
}

func newFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <file>",
		Short: "Print the fingerprint of a module and each of its imports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			src, err := readSource(args[0])
			if err != nil {
				return err
			}
			mod, err := lang.New().LoadModule(src, cfg.SearchPaths)
			if err != nil {
				return err
			}
			all := fingerprint.All(fingerprint.Module(mod))
			for _, id := range slices.Sorted(maps.Keys(all)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", all[id], id)
			}
			return nil
		},
	}
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the compilation cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", store.Root())
			return nil
		},
	}, &cobra.Command{
		Use:   "gc",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			n, err := store.GC()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		},
	})
	return cmd
}

func openStore(cmd *cobra.Command) (interface {
	Root() string
	Clear() error
	GC() (int, error)
}, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir, err := cfg.cacheDir()
	if err != nil {
		return nil, err
	}
	return build.OpenDirCache(dir, cfg.CacheTTL)
}

func printResult(cmd *cobra.Command, res *console.Result) {
	out := cmd.OutOrStdout()
	if res.Type == "" {
		fmt.Fprintln(out, "ok")
	} else {
		fmt.Fprintf(out, "%d\n", res.Value)
	}
	if len(res.Compiled) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "compiled: %s\n", strings.Join(res.Compiled, ", "))
	}
}

func parseArgs(args []string) ([]int64, error) {
	vals := make([]int64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return vals, nil
}

func readSource(file string) (toolchain.Source, error) {
	text, err := os.ReadFile(file)
	if err != nil {
		return toolchain.Source{}, err
	}
	return toolchain.Source{Name: lang.ModuleName(file), Filename: file, Text: string(text)}, nil
}
