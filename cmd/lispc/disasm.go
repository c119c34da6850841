package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lispc/lispc/pkg/vm"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file.lisp>...",
		Short: "Compile one or more source files and dump their bytecode",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(cmd, args)
		},
	}
}

func runDisasm(cmd *cobra.Command, paths []string) error {
	cfg := loadConfig(cmd)

	for _, path := range paths {
		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		session, cleanup, err := newSession(cfg, false, "")
		if err != nil {
			return err
		}

		code, err := session.CompileString(path, string(source))
		cleanup()
		if err != nil {
			printError(err)
			return err
		}

		fmt.Printf("; %s\n", path)
		vm.Disassemble(os.Stdout, code, session.Pool())
	}
	return nil
}
