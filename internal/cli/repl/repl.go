package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LineReader supplies input lines.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Executor runs one command line split into words.
type Executor func(ctx context.Context, args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     LineReader
	output    io.Writer
	exec      Executor
	prompt    func() string
	record    func(args []string) bool
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithPrompt sets the prompt, evaluated before every line.
func WithPrompt(fn func() string) Option {
	return func(r *REPL) { r.prompt = fn }
}

// WithCompleter sets the command names offered by help.
func WithCompleter(c *Completer) Option {
	return func(r *REPL) { r.completer = c }
}

// WithHistory sets the history.
func WithHistory(h *History) Option {
	return func(r *REPL) { r.history = h }
}

// WithHistoryFilter keeps lines for which fn returns false out of the
// history, e.g. lines carrying a password.
func WithHistoryFilter(fn func(args []string) bool) Option {
	return func(r *REPL) { r.record = fn }
}

// New creates a REPL reading from in and dispatching to exec.
func New(in LineReader, out io.Writer, exec Executor, opts ...Option) *REPL {
	r := &REPL{
		input:  in,
		output: out,
		exec:   exec,
		prompt: func() string { return "> " },
		record: func([]string) bool { return true },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.completer == nil {
		r.completer = NewCompleter()
	}
	if r.history == nil {
		r.history = NewHistory("", DefaultHistorySize)
	}
	return r
}

// History returns the history in use.
func (r *REPL) History() *History {
	return r.history
}

// Run reads and executes lines until exit, end of input or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	for {
		fmt.Fprint(r.output, r.prompt())

		line, err := r.input.ReadLine(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args, err := Split(line)
		if err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
			continue
		}
		if r.record(args) {
			r.history.Add(line)
		}

		switch args[0] {
		case "exit", "quit":
			return nil
		case "help":
			r.help(args[1:])
			continue
		case "history":
			r.printHistory()
			continue
		}

		if err := r.exec(ctx, args); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
	}
}

func (r *REPL) help(args []string) {
	prefix := strings.Join(args, " ")
	matches := r.completer.Complete(prefix)
	if len(matches) == 0 {
		fmt.Fprintf(r.output, "No command matches %q\n", prefix)
		return
	}
	for _, m := range matches {
		fmt.Fprintln(r.output, "  "+m)
	}
	fmt.Fprintln(r.output, "Run \"COMMAND --help\" for details.")
}

func (r *REPL) printHistory() {
	entries := r.history.Entries()
	for i, e := range entries {
		fmt.Fprintf(r.output, "%4d  %s\n", i+1, e)
	}
}

// Split breaks a line into words. Single quotes keep text literally;
// double quotes allow backslash escapes.
func Split(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped, inWord = true, true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote, inWord = c, true
		case c == ' ' || c == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}
