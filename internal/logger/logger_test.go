package logger

import "testing"

func TestBufferLoggerCaptures(t *testing.T) {
	l := NewBufferLogger()

	l.Debug("connecting to %s", "web1")
	l.Info("connected")
	l.Warn("slow handshake")
	l.Error("lost connection")

	if len(l.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(l.Messages))
	}
	if l.Messages[0].Message != "connecting to web1" {
		t.Errorf("unexpected debug message: %q", l.Messages[0].Message)
	}
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if !l.HasLevel(level) {
			t.Errorf("missing level %s", level)
		}
	}
}

func TestBufferLoggerClear(t *testing.T) {
	l := NewBufferLogger()
	l.Info("x")
	l.Clear()

	if len(l.Messages) != 0 {
		t.Errorf("expected no messages after Clear, got %d", len(l.Messages))
	}
	if l.HasLevel("info") {
		t.Error("HasLevel should be false after Clear")
	}
}

func TestNoopDiscards(t *testing.T) {
	// Just exercise the paths; nothing observable.
	l := Noop()
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	buf := NewBufferLogger()
	SetDefault(buf)

	Default().Info("hello")
	if !buf.HasLevel("info") {
		t.Error("default logger should be the buffer")
	}
}
