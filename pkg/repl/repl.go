// Package repl provides an interactive Read-Eval-Print Loop for lispc,
// layered directly over the shared compiler.Session: every line (or
// multi-line form) the user enters is read, compiled, macro-expanded,
// and run on the same long-lived VM, so def'd globals and defmacro'd
// macros from earlier input stay visible to later input.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lispc/lispc/pkg/compiler"
	"github.com/lispc/lispc/pkg/native"
	"github.com/lispc/lispc/pkg/vm"
)

// REPL provides an interactive programming environment for lispc.
type REPL struct {
	session *compiler.Session
	reader  *bufio.Reader
	writer  io.Writer
	running bool
	version string
	// inputBuffer holds an incomplete multi-line form (unbalanced parens
	// or an open string literal).
	inputBuffer strings.Builder
	lineNumber  int
}

// New creates a new REPL instance with the bootstrap native registry
// already installed, exactly as cmd/lispc's `compile`/`run` commands do.
func New(reader io.Reader, writer io.Writer, version string) *REPL {
	session := compiler.NewSession()
	native.Register(session.VM())

	return &REPL{
		session:    session,
		reader:     bufio.NewReader(reader),
		writer:     writer,
		running:    false,
		version:    version,
		lineNumber: 1,
	}
}

// Start begins the REPL loop.
func (r *REPL) Start() error {
	r.running = true
	r.printWelcome()

	for r.running {
		r.printPrompt()
		line, err := r.readLine()
		if err != nil {
			if err == io.EOF {
				r.running = false
				break
			}
			r.printf("Error reading input: %v\n", err)
			continue
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" && r.inputBuffer.Len() == 0 {
			continue
		}

		if err := r.processLine(line); err != nil {
			r.printf("Error: %v\n", err)
		}
	}

	r.printGoodbye()
	return nil
}

// Stop stops the REPL loop.
func (r *REPL) Stop() {
	r.running = false
}

// processLine processes a single line of input.
func (r *REPL) processLine(line string) error {
	if strings.HasPrefix(line, ":") && r.inputBuffer.Len() == 0 {
		return r.executeCommand(line)
	}

	if r.inputBuffer.Len() > 0 {
		r.inputBuffer.WriteString("\n")
	}
	r.inputBuffer.WriteString(line)

	input := r.inputBuffer.String()
	if !isInputComplete(input) {
		return nil
	}

	r.inputBuffer.Reset()
	r.lineNumber++

	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	return r.evaluate(input)
}

// evaluate compiles and runs one or more top-level forms on the
// session's shared VM and prints the resulting value.
func (r *REPL) evaluate(input string) error {
	result, err := r.session.RunString("<repl>", input)
	if err != nil {
		return err
	}
	r.printResult(result)
	return nil
}

// isInputComplete reports whether input has balanced parentheses and no
// open string literal — the only two ways a form can span multiple
// lines, since the reader recognizes only '(' and ')' as delimiters.
func isInputComplete(input string) bool {
	parenCount := 0
	inString := false

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if ch == '"' && (i == 0 || input[i-1] != '\\') {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '(':
			parenCount++
		case ')':
			parenCount--
		}
	}

	return parenCount <= 0 && !inString
}

// printWelcome prints the welcome message.
func (r *REPL) printWelcome() {
	r.printf("lispc REPL v%s\n", r.version)
	r.printf("Type :help for available commands, :quit to exit\n")
	r.printf("=========================================\n\n")
}

// printGoodbye prints the goodbye message.
func (r *REPL) printGoodbye() {
	r.printf("\nGoodbye!\n")
}

// printPrompt prints the command prompt.
func (r *REPL) printPrompt() {
	if r.inputBuffer.Len() > 0 {
		r.printf("... ")
	} else {
		r.printf("lisp> ")
	}
}

// readLine reads a line of input.
func (r *REPL) readLine() (string, error) {
	return r.reader.ReadString('\n')
}

// printf writes formatted output.
func (r *REPL) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.writer, format, args...)
}

// printResult prints an evaluation result.
func (r *REPL) printResult(result vm.Object) {
	if result == nil {
		r.printf("nil\n")
		return
	}
	r.printf("=> %s\n", result.String())
}

// VM exposes the REPL's shared VM, e.g. so a host process can register
// additional natives (pkg/native's Redis/SQLite-backed ones) before
// Start is called.
func (r *REPL) VM() *vm.VM { return r.session.VM() }

// LoadFile reads and runs a lisp source file on the REPL's session,
// making its top-level defs visible to subsequent input.
func (r *REPL) LoadFile(filepath string) error {
	source, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	_, err = r.session.RunString(filepath, string(source))
	return err
}

// Reset discards the REPL's session (globals, macros, constant pool)
// and starts a fresh one with the bootstrap natives reinstalled.
func (r *REPL) Reset() {
	r.session = compiler.NewSession()
	native.Register(r.session.VM())
	r.inputBuffer.Reset()
	r.lineNumber = 1
}
