package proc

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"
)

func TestFakeHandle_Lifecycle(t *testing.T) {
	h := NewFakeHandle()

	if h.PID() != 0 {
		t.Error("PID should be 0 before Start")
	}
	if h.Input() != nil || h.Output() != nil {
		t.Error("streams should be nil before Start")
	}

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !h.Running() {
		t.Error("should be running after Start")
	}
	if err := h.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start should fail with ErrAlreadyStarted, got %v", err)
	}

	go h.EmitOutput("hello")
	buf := make([]byte, 16)
	n, err := h.Output().Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("expected 'hello', got %q", buf[:n])
	}

	if _, err := io.WriteString(h.Input(), "prompt\n"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if h.InputString() != "prompt\n" {
		t.Errorf("input capture mismatch: %q", h.InputString())
	}

	h.Exit(3)
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Done should close after Exit")
	}
	if h.Running() {
		t.Error("should not be running after Exit")
	}
	if h.ExitCode() != 3 {
		t.Errorf("expected exit code 3, got %d", h.ExitCode())
	}

	// Output reader sees EOF after exit.
	if _, err := h.Output().Read(buf); err != io.EOF && err != io.ErrClosedPipe {
		t.Errorf("expected EOF after exit, got %v", err)
	}
}

func TestFakeHandle_StartErr(t *testing.T) {
	h := NewFakeHandle()
	h.StartErr = errors.New("executable file not found in $PATH")

	if err := h.Start(context.Background()); err == nil {
		t.Fatal("Start should surface the configured spawn error")
	}
	if h.Running() {
		t.Error("failed Start must not leave the handle running")
	}
}

func TestFakeHandle_TermOnSignal(t *testing.T) {
	h := NewFakeHandle()
	h.TermOnSignal = true
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := h.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("SIGTERM with TermOnSignal should exit the fake")
	}
	if h.ExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", h.ExitCode())
	}
	sigs := h.Signals()
	if len(sigs) != 1 || sigs[0] != syscall.SIGTERM {
		t.Errorf("expected recorded SIGTERM, got %v", sigs)
	}
}
