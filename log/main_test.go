package log

import (
	"bytes"
	"strings"
	"testing"
)

func Test_Prefix(t *testing.T) {
	stdoutBuffer := bytes.NewBuffer(nil)
	stderrBuffer := bytes.NewBuffer(nil)
	l := NewWithPrefix(stdoutBuffer, stderrBuffer, "myprefix")
	l.Info("test")
	if stdoutBuffer.Len() == 0 {
		t.Errorf("expected stdout buffer to not be empty")
	}

	logBuffer := stdoutBuffer.String()
	if !strings.Contains(logBuffer, "myprefix") {
		t.Errorf("expected prefix to be used in output")
	}
	if !strings.Contains(logBuffer, "test") {
		t.Errorf("expected logline to contain 'test'")
	}
	if stderrBuffer.Len() != 0 {
		t.Errorf("expected stderr buffer to be empty")
	}
}

func Test_WithPrefix(t *testing.T) {
	stdoutBuffer := bytes.NewBuffer(nil)
	l := NewWithPrefix(stdoutBuffer, bytes.NewBuffer(nil), "parent")
	l.SetLevel(DebugLevel)
	child := l.WithPrefix("child")
	if child.Level() != DebugLevel {
		t.Errorf("expected child to inherit level, got %s", child.Level())
	}
	child.Debug("from-child")
	if !strings.Contains(stdoutBuffer.String(), "module=child") {
		t.Errorf("expected child prefix in output, got %q", stdoutBuffer.String())
	}
}

func Test_Loglevel(t *testing.T) {
	stdoutBuffer := bytes.NewBuffer(nil)
	stderrBuffer := bytes.NewBuffer(nil)
	l := NewWithPrefix(stdoutBuffer, stderrBuffer, "myprefix")
	l.Trace("trace-message")
	if stdoutBuffer.Len() != 0 {
		t.Errorf("trace level: expected stdout buffer to be empty")
	}
	if stderrBuffer.Len() != 0 {
		t.Errorf("trace level: expected stderr buffer to be empty")
	}
	l.Debug("debug-message")
	if stdoutBuffer.Len() != 0 {
		t.Errorf("debug level: expected stdout buffer to be empty")
	}
	if stderrBuffer.Len() != 0 {
		t.Errorf("debug level: expected stderr buffer to be empty")
	}
	// info goes to stdout
	l.Info("info-message")
	if stdoutBuffer.Len() == 0 {
		t.Errorf("info level: expected stdout buffer to not be empty")
	}
	currentStdoutSize := stdoutBuffer.Len()
	if stderrBuffer.Len() != 0 {
		t.Errorf("info level: expected stderr buffer to be empty")
	}
	// warn goes to stderr
	l.Warn("warn-message")
	if stdoutBuffer.Len() != currentStdoutSize {
		t.Errorf("warn level: expected stdout buffer to not change")
	}
	if stderrBuffer.Len() == 0 {
		t.Errorf("warn level: expected stderr buffer to not be empty")
	}
	currentStderrSize := stderrBuffer.Len()
	l.Error("error-message")
	if stdoutBuffer.Len() != currentStdoutSize {
		t.Errorf("error level: expected stdout buffer to not change")
	}
	if stderrBuffer.Len() == currentStderrSize {
		t.Errorf("error level: expected stderr buffer to change")
	}
}

func Test_SetLevelFromString(t *testing.T) {
	l := NewLogger(bytes.NewBuffer(nil), bytes.NewBuffer(nil))
	for _, s := range []string{"trace", "debug", "info", "warn", "error", ""} {
		if err := l.SetLevelFromString(s); err != nil {
			t.Errorf("level %q: %s", s, err)
		}
	}
	if err := l.SetLevelFromString("verbose"); err == nil {
		t.Errorf("expected error for unknown level")
	}
	if l.Level() != InfoLevel {
		t.Errorf("unknown level should leave level untouched, got %s", l.Level())
	}
}
