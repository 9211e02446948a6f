package tlsroots

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

func TestNewWatcher_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewWatcher(filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"))
	if err == nil {
		t.Error("NewWatcher() should fail without a key pair")
	}
}

func TestWatcher_ReloadsRotatedPair(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, _ := writeKeyPair(t, dir, "v1")

	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.NewNop()), WithDebounce(0))
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	defer w.Stop()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	_, _, der := writeKeyPair(t, dir, "v2")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		cert, _ := w.GetClientCertificate(nil)
		if bytes.Equal(cert.Certificate[0], der) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("rotated key pair was not loaded")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, der := writeKeyPair(t, dir, "v1")

	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.NewNop()), WithDebounce(0))
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600)
	time.Sleep(100 * time.Millisecond)

	cert, _ := w.GetClientCertificate(nil)
	if !bytes.Equal(cert.Certificate[0], der) {
		t.Error("unrelated file change replaced the key pair")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	certFile, keyFile, _ := writeKeyPair(t, t.TempDir(), "v1")
	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Start() }()
	time.Sleep(50 * time.Millisecond)

	w.Stop()
	w.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
