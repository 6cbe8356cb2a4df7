package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoAlwaysLogs(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	l.Info("hello %s", "world")
	if !strings.Contains(buf.String(), "[INFO]") || !strings.Contains(buf.String(), "hello world") {
		t.Errorf("Info output = %q", buf.String())
	}
}

func TestDebugSuppressedWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	l.Debug("should not appear")
	if buf.Len() != 0 {
		t.Errorf("Debug should be suppressed when verbose=false, got %q", buf.String())
	}
}

func TestDebugEmittedWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := New(true, &buf)
	l.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Debug output = %q", buf.String())
	}
}

func TestSetVerboseToggles(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	if l.IsVerbose() {
		t.Fatal("expected IsVerbose() false initially")
	}
	l.SetVerbose(true)
	if !l.IsVerbose() {
		t.Fatal("expected IsVerbose() true after SetVerbose(true)")
	}
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("Debug should emit once verbose is enabled")
	}
}

func TestErrorAlwaysLogs(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	l.Error("bad thing: %v", "oops")
	if !strings.Contains(buf.String(), "[ERROR]") {
		t.Errorf("Error output = %q", buf.String())
	}
}

func TestSetDefaultAndPackageLevelFunctions(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(New(true, &buf))

	Info("pkg info")
	Debug("pkg debug")
	Error("pkg error")

	out := buf.String()
	if !strings.Contains(out, "pkg info") || !strings.Contains(out, "pkg debug") || !strings.Contains(out, "pkg error") {
		t.Errorf("package-level logging output = %q", out)
	}
}

func TestAliasesDelegateToBaseMethods(t *testing.T) {
	var buf bytes.Buffer
	l := New(true, &buf)
	l.Infof("a")
	l.Debugf("b")
	l.Errorf("c")
	out := buf.String()
	if !strings.Contains(out, "a") || !strings.Contains(out, "b") || !strings.Contains(out, "c") {
		t.Errorf("alias output = %q", out)
	}
}
