package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lispc/lispc/pkg/logging"
	"github.com/lispc/lispc/pkg/metrics"
	"github.com/lispc/lispc/pkg/native"
	"github.com/lispc/lispc/pkg/vm"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file.lisp>",
		Short: "Compile and run a source file on the VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0])
		},
	}
	cmd.Flags().Bool("cache", false, "install the Redis-backed cache-get!/cache-set!/cache-del! natives (when cache_backend is redis); compilation itself is not cached")
	cmd.Flags().String("db", "", "SQLite file backing (db-save!)/(db-load) global persistence")
	cmd.Flags().BoolP("watch", "w", false, "recompile and rerun whenever the source file changes")
	cmd.Flags().Bool("bytecode", false, "treat the input as a .lispc container from `lispc compile -o` (implied by the extension)")
	return cmd
}

func runRun(cmd *cobra.Command, path string) error {
	cfg := loadConfig(cmd)
	useCache, _ := cmd.Flags().GetBool("cache")
	dbPath, _ := cmd.Flags().GetString("db")
	watch, _ := cmd.Flags().GetBool("watch")
	asBytecode, _ := cmd.Flags().GetBool("bytecode")

	m := metrics.NewMetrics(metrics.DefaultConfig())

	evalOnce := func() error {
		if asBytecode || filepath.Ext(path) == ".lispc" {
			return runBytecode(path)
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		session, cleanup, err := newSession(cfg, useCache, dbPath)
		if err != nil {
			return err
		}
		defer cleanup()

		start := time.Now()
		result, err := session.RunString(path, string(source))
		m.RecordCompileUnit("run", time.Since(start), err)
		if err != nil {
			printError(err)
			return err
		}

		if result == nil {
			printInfo("=> nil")
		} else {
			printInfo(fmt.Sprintf("=> %s", result.String()))
		}
		return nil
	}

	if !watch {
		return evalOnce()
	}

	if err := evalOnce(); err != nil {
		logging.Warn(fmt.Sprintf("initial run of %s failed: %v", path, err))
	}
	return watchAndRerun(path, evalOnce)
}

// runBytecode executes a .lispc container produced by `lispc compile -o`
// on a fresh VM with the bootstrap natives installed.
func runBytecode(path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	code, pool, err := vm.DecodeBytecode(blob)
	if err != nil {
		return err
	}

	machine := vm.NewVM(pool)
	native.Register(machine)

	result, err := machine.RunProgram(code)
	if err != nil {
		printError(err)
		return err
	}
	if result == nil {
		printInfo("=> nil")
	} else {
		printInfo(fmt.Sprintf("=> %s", result.String()))
	}
	return nil
}

// watchAndRerun recompiles and reruns whenever path's containing
// directory reports a write/create event for it.
func watchAndRerun(path string, rerun func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	printInfo(fmt.Sprintf("watching %s for changes (ctrl-c to stop)", abs))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			printInfo(fmt.Sprintf("%s changed, rerunning", path))
			if err := rerun(); err != nil {
				printWarning(err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			printWarning(fmt.Sprintf("watcher error: %v", err))
		}
	}
}
