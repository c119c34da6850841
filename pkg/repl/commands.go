package repl

import (
	"fmt"
	"sort"
	"strings"
)

// executeCommand executes a REPL command (lines starting with :).
func (r *REPL) executeCommand(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case ":help", ":h":
		return r.cmdHelp(args)
	case ":quit", ":q", ":exit":
		return r.cmdQuit(args)
	case ":load", ":l":
		return r.cmdLoad(args)
	case ":reset", ":r":
		return r.cmdReset(args)
	case ":clear", ":cls":
		return r.cmdClear(args)
	case ":globals", ":g":
		return r.cmdGlobals(args)
	default:
		return fmt.Errorf("unknown command: %s (type :help for available commands)", cmd)
	}
}

// cmdHelp displays help information.
func (r *REPL) cmdHelp(args []string) error {
	r.printf("lispc REPL Commands:\n")
	r.printf("====================\n\n")
	r.printf("Commands:\n")
	r.printf("  :help, :h              - Show this help message\n")
	r.printf("  :quit, :q, :exit       - Exit the REPL\n")
	r.printf("  :load, :l <file>       - Run a .lisp file, keeping its defs in scope\n")
	r.printf("  :reset, :r             - Discard the session and start fresh\n")
	r.printf("  :clear, :cls           - Clear the screen\n")
	r.printf("  :globals, :g           - List all global bindings\n")
	r.printf("\n")
	r.printf("Examples:\n")
	r.printf("  lisp> (+ 1 (* 2 3))\n")
	r.printf("  => 7\n")
	r.printf("  lisp> (def double (lambda (n) (* n 2)))\n")
	r.printf("  => nil\n")
	r.printf("  lisp> (double 21)\n")
	r.printf("  => 42\n")
	r.printf("\n")
	return nil
}

// cmdQuit exits the REPL.
func (r *REPL) cmdQuit(args []string) error {
	r.running = false
	return nil
}

// cmdLoad runs a .lisp file, folding its top-level defs into the
// session's globals.
func (r *REPL) cmdLoad(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: :load <filename>")
	}

	filepath := args[0]
	if !strings.HasSuffix(filepath, ".lisp") {
		filepath += ".lisp"
	}

	r.printf("Loading %s...\n", filepath)

	if err := r.LoadFile(filepath); err != nil {
		return err
	}

	r.printf("Loaded successfully\n")
	return nil
}

// cmdReset resets the REPL state.
func (r *REPL) cmdReset(args []string) error {
	r.Reset()
	r.printf("REPL state reset\n")
	return nil
}

// cmdClear clears the screen with the ANSI erase+home sequence, writing
// through the REPL's own writer so tests capturing output see it too.
func (r *REPL) cmdClear(args []string) error {
	r.printf("\033[2J\033[H")
	return nil
}

// cmdGlobals lists all global bindings defined so far this session.
func (r *REPL) cmdGlobals(args []string) error {
	globals := r.session.VM().Globals()

	if len(globals) == 0 {
		r.printf("No globals defined\n")
		return nil
	}

	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	r.printf("Globals:\n")
	for _, name := range names {
		r.printf("  %s = %s\n", name, globals[name].Get().String())
	}

	return nil
}
