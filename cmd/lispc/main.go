// Command lispc is the compiler, VM, and REPL front-end for the lispc
// language: `lispc compile`/`run` drive one source file through the full
// pipeline (reader → AST → macro expansion → IL → bytecode → VM),
// `lispc disasm` dumps the resulting bytecode, and `lispc repl` starts an
// interactive session, optionally exposed over WebSocket for browser
// front-ends.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "lispc",
		Short:   "Compiler, VM, and REPL for the lispc language",
		Version: version,
	}

	root.PersistentFlags().String("config", "lispc.yaml", "path to project config file")

	root.AddCommand(
		newCompileCmd(),
		newRunCmd(),
		newDisasmCmd(),
		newReplCmd(),
		newServeMetricsCmd(),
	)

	return root
}

func fatalf(format string, args ...any) {
	printError(fmt.Errorf(format, args...))
	os.Exit(1)
}
