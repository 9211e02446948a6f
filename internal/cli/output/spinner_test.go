package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer shared with the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_Success(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "Signing in")
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Success("Signed in")

	out := buf.String()
	if !strings.Contains(out, "Signing in") {
		t.Error("spinner never drew its message")
	}
	if !strings.HasSuffix(out, "✓ Signed in\n") {
		t.Errorf("output should end with the success line, got %q", out)
	}
}

func TestSpinner_FinishOnce(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "Calling")
	s.Start()
	s.Fail("unreachable")
	s.Stop()
	s.Success("ignored")

	out := buf.String()
	if strings.Count(out, "✗ unreachable") != 1 || strings.Contains(out, "ignored") {
		t.Errorf("only the first finish should print, got %q", out)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "idle")
	s.Stop()
	if !strings.Contains(buf.String(), "\r") {
		t.Error("Stop should clear the line")
	}
}
