// Command fbc is FasterBASIC's compiler driver (spec.md §6 External
// Interfaces): `fbc <source.bas> [-o name] [-i] [--jit] [--runtime-dir
// path] [-c]`, plus `fbc ir`/`fbc asm` introspection subcommands for
// inspecting the lowered IR or the generated assembly without linking.
package main

import (
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"fasterbasic/internal/build"
	"fasterbasic/internal/config"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	root := &cobra.Command{
		Use:   "fbc [source.bas...]",
		Short: "FasterBASIC ARM64 AOT/JIT compiler",
		Args:  cobra.ArbitraryArgs,
		RunE:  runBuild,
	}
	root.AddCommand(irCommand(), asmCommand())
	root.Flags().StringP("output", "o", "a.out", "output binary path")
	root.Flags().BoolP("ir", "i", false, "emit lowered IR instead of assembling")
	root.Flags().Bool("jit", false, "assemble into an in-process JIT buffer (not executed)")
	root.Flags().String("runtime-dir", "", "directory containing the prebuilt runtime archive")
	root.Flags().BoolP("compile-only", "c", false, "stop after writing assembly; do not invoke the linker")
	root.Flags().Bool("no-neon-copy", false, "disable NEON-vectorised array copy/fill")
	root.Flags().Bool("no-neon-arith", false, "disable NEON-vectorised elementwise arithmetic")
	root.Flags().Bool("no-neon-loop", false, "disable loop vectorisation entirely")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	opts, err := config.Load(rawArgs(cmd, args))
	if err != nil {
		return err
	}
	if len(opts.Sources) == 0 {
		return cmd.Help()
	}
	b := build.NewBuilder(opts).WithLogger(logger)
	res, err := b.Build()
	if err != nil {
		return err
	}
	if res.JITBuf != nil {
		defer res.JITBuf.Close()
		fmt.Fprintln(os.Stdout, "jit: buffer sealed and ready; entry point assembled")
		return nil
	}
	if opts.EmitIR {
		fmt.Print(res.IRText)
		return nil
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", opts.OutputPath)
	return nil
}

// rawArgs reconstructs argv for config.Load (which owns its own pflag
// set) from cobra's already-parsed flags, so the same flag definitions
// aren't declared twice: cobra exists for subcommand dispatch and help
// text, config.Load for the actual Options value the rest of the
// compiler consumes.
func rawArgs(cmd *cobra.Command, positional []string) []string {
	var out []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		out = append(out, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	out = append(out, positional...)
	return out
}

func irCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ir [source.bas...]",
		Short: "Lower sources and pretty-print the IR module",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(append([]string{"-i"}, args...))
			if err != nil {
				return err
			}
			res, err := build.NewBuilder(opts).Build()
			if err != nil {
				return err
			}
			for _, fn := range res.Module.Functions {
				pretty.Println(fn)
			}
			return nil
		},
	}
}

func asmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "asm [source.bas...]",
		Short: "Emit textual ARM64 assembly to stdout without linking",
		RunE: func(cmd *cobra.Command, args []string) error {
			tmp, err := os.CreateTemp("", "fbc-asm-*")
			if err != nil {
				return err
			}
			tmpPath := tmp.Name()
			tmp.Close()
			os.Remove(tmpPath)
			opts, err := config.Load(append([]string{"-c", "-o", tmpPath}, args...))
			if err != nil {
				return err
			}
			res, err := build.NewBuilder(opts).Build()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(res.AsmPath)
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			return os.Remove(res.AsmPath)
		},
	}
}
