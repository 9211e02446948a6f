package connection

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/dinegate/internal/auth/lifecycle"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/storage"
)

func TestTerminal_ConfirmContinue(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    lifecycle.Decision
		wantErr error
	}{
		{"enter continues", "\n", lifecycle.Continue, nil},
		{"yes continues", "Yes\n", lifecycle.Continue, nil},
		{"no logs out", "n\n", lifecycle.LogOut, nil},
		{"closed input logs out", "", lifecycle.LogOut, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tt.input), &out, nil)

			got, err := term.ConfirmContinue(context.Background(), 90*time.Second)
			if got != tt.want {
				t.Errorf("decision = %v, want %v", got, tt.want)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), "expires in 1m30s") {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

func TestTerminal_ConfirmContinue_Deadline(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	term := NewTerminal(r, io.Discard, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	got, err := term.ConfirmContinue(ctx, time.Minute)
	if got != lifecycle.LogOut || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ConfirmContinue() = %v, %v; want LogOut, DeadlineExceeded", got, err)
	}
}

func TestTerminal_ReadLineHandsAnswerToPrompt(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term := NewTerminal(r, io.Discard, nil)
	ctx := context.Background()

	go w.Write([]byte("first\n"))
	if line, err := term.ReadLine(ctx); err != nil || line != "first" {
		t.Fatalf("ReadLine() = %q, %v", line, err)
	}

	decided := make(chan lifecycle.Decision, 1)
	go func() {
		d, _ := term.ConfirmContinue(ctx, time.Minute)
		decided <- d
	}()
	for {
		term.mu.Lock()
		waiting := term.pending != nil
		term.mu.Unlock()
		if waiting {
			break
		}
		time.Sleep(time.Millisecond)
	}

	go w.Write([]byte("n\nnext\n"))
	line, err := term.ReadLine(ctx)
	if err != nil || line != "next" {
		t.Fatalf("ReadLine() = %q, %v; want the line after the answer", line, err)
	}
	if d := <-decided; d != lifecycle.LogOut {
		t.Errorf("decision = %v, want LogOut", d)
	}
}

func TestTerminal_ReadLineEOF(t *testing.T) {
	term := NewTerminal(strings.NewReader("only\n"), io.Discard, nil)
	if line, _ := term.ReadLine(context.Background()); line != "only" {
		t.Fatalf("ReadLine() = %q", line)
	}
	if _, err := term.ReadLine(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("ReadLine() at end = %v, want io.EOF", err)
	}
}

func TestTerminal_Notify(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(nil, &out, nil)

	term.Notify(domain.Notice{})
	term.Notify(domain.Notice{Level: domain.NoticeWarning, Message: "Please sign in first."})

	if got := out.String(); got != "[warning] Please sign in first.\n" {
		t.Errorf("output = %q", got)
	}
}

func TestTerminal_NavigatePersists(t *testing.T) {
	views := storage.NewMemory()
	var out bytes.Buffer

	term := NewTerminal(nil, &out, views)
	if term.CurrentPath() != "" {
		t.Errorf("CurrentPath() = %q, want empty", term.CurrentPath())
	}
	if err := term.Navigate("/auth/login"); err != nil {
		t.Fatal(err)
	}
	if err := term.Navigate("/auth/login"); err != nil {
		t.Fatal(err)
	}
	if strings.Count(out.String(), "-> /auth/login") != 1 {
		t.Errorf("repeated navigation should print once, got %q", out.String())
	}

	again := NewTerminal(nil, io.Discard, views)
	if again.CurrentPath() != "/auth/login" {
		t.Errorf("restored path = %q, want /auth/login", again.CurrentPath())
	}
}
