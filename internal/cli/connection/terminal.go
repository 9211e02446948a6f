package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/dinegate/internal/auth/lifecycle"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/storage"
)

// KeyView is the storage key holding the current view between runs.
const KeyView = "dinegate.view"

// Terminal is the console front end of a session.
type Terminal struct {
	out   io.Writer
	views storage.LocalStore

	mu   sync.Mutex
	path string

	in        io.Reader
	linesOnce sync.Once
	lines     chan string

	// Set once ReadLine is in use: prompt answers are then routed through
	// the ReadLine caller instead of read directly.
	shared  bool
	pending chan string
}

// NewTerminal creates a terminal reading answers from in and writing to
// out. When views is non-nil the current view survives between runs.
func NewTerminal(in io.Reader, out io.Writer, views storage.LocalStore) *Terminal {
	t := &Terminal{in: in, out: out, views: views}
	if views != nil {
		if p, err := views.GetItem(context.Background(), KeyView); err == nil {
			t.path = p
		}
	}
	return t
}

// ConfirmContinue prints the expiry warning and waits for y/n. No input
// or a closed input means log out.
func (t *Terminal) ConfirmContinue(ctx context.Context, remaining time.Duration) (lifecycle.Decision, error) {
	answers, release := t.answers()
	defer release()

	fmt.Fprintf(t.out, "Your session expires in %s. Stay signed in? [Y/n] ", remaining.Round(time.Second))

	select {
	case line, ok := <-answers:
		if !ok {
			fmt.Fprintln(t.out)
			return lifecycle.LogOut, io.EOF
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return lifecycle.Continue, nil
		default:
			return lifecycle.LogOut, nil
		}
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return lifecycle.LogOut, ctx.Err()
	}
}

// answers returns the channel a prompt should wait on. With a ReadLine
// consumer the next line it reads is handed over instead.
func (t *Terminal) answers() (<-chan string, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.shared {
		return t.readLines(), func() {}
	}
	ch := make(chan string, 1)
	t.pending = ch
	return ch, func() {
		t.mu.Lock()
		if t.pending == ch {
			t.pending = nil
		}
		t.mu.Unlock()
	}
}

// ReadLine returns the next input line that is not the answer to an open
// prompt. It returns io.EOF once the input is exhausted.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	t.mu.Lock()
	t.shared = true
	t.mu.Unlock()

	lines := t.readLines()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			t.mu.Lock()
			pending := t.pending
			t.pending = nil
			t.mu.Unlock()
			if pending != nil {
				pending <- line
				continue
			}
			return line, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// readLines starts a single reader over in. The reader outlives a
// cancelled prompt, so a late answer is kept for the next one.
func (t *Terminal) readLines() <-chan string {
	t.linesOnce.Do(func() {
		t.lines = make(chan string)
		if t.in == nil {
			close(t.lines)
			return
		}
		go func() {
			defer close(t.lines)
			sc := bufio.NewScanner(t.in)
			for sc.Scan() {
				t.lines <- sc.Text()
			}
		}()
	})
	return t.lines
}

// Notify prints a notice.
func (t *Terminal) Notify(n domain.Notice) {
	if n.Empty() {
		return
	}
	fmt.Fprintf(t.out, "[%s] %s\n", n.Level, n.Message)
}

// CurrentPath returns the current view.
func (t *Terminal) CurrentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Navigate switches to path and persists it.
func (t *Terminal) Navigate(path string) error {
	t.mu.Lock()
	changed := t.path != path
	t.path = path
	t.mu.Unlock()

	if !changed {
		return nil
	}
	fmt.Fprintf(t.out, "-> %s\n", path)

	if t.views == nil {
		return nil
	}
	if err := t.views.SetItem(context.Background(), KeyView, path); err != nil && !errors.Is(err, storage.ErrClosed) {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}
