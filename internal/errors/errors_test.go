package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorRendering(t *testing.T) {
	err := New(ErrConfig, "No target hosts configured", "Set the hosts list in .fab.yaml")

	got := err.Error()
	if !strings.Contains(got, "✗ No target hosts configured") {
		t.Errorf("missing message marker in %q", got)
	}
	if !strings.Contains(got, "Set the hosts list in .fab.yaml") {
		t.Errorf("missing suggestion in %q", got)
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := WrapWithCode(cause, ErrConnect, "Couldn't connect to web1", "")

	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("missing cause in %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause should satisfy errors.Is")
	}
}

func TestWrapDefaultsToConnectCode(t *testing.T) {
	cause := stderrors.New("EOF")
	err := Wrap(cause, "Failed to create SSH session with web1")

	if !IsCode(err, ErrConnect) {
		t.Error("Wrap should default to the connect code")
	}
	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause should satisfy errors.Is")
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrTransfer, "upload failed", "")

	if !IsCode(err, ErrTransfer) {
		t.Error("IsCode should match the error's code")
	}
	if IsCode(err, ErrConnect) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(nil, ErrConnect) {
		t.Error("IsCode(nil) should be false")
	}
	if IsCode(stderrors.New("plain"), ErrConnect) {
		t.Error("IsCode should be false for unstructured errors")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(ErrConfig, "bad mode", "")
	outer := WrapWithCode(inner, ErrExec, "command failed", "")

	// The outermost code wins; the inner one is still reachable via As.
	if !IsCode(outer, ErrExec) {
		t.Error("outer code should match")
	}
}
