package log

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, name string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	return ForService(name), buf
}

func TestLinePrefix(t *testing.T) {
	SetGlobalDebug(false)

	l, buf := newTestLogger(t, "prefix_test")
	l.Infof("synced %d items", 3)

	out := buf.String()
	if !strings.Contains(out, "INFO [prefix_test>] synced 3 items") {
		t.Fatalf("unexpected log line: %q", out)
	}
}

func TestWarnAndError(t *testing.T) {
	l, buf := newTestLogger(t, "levels_test")
	l.Warnf("careful")
	l.Errorf("broken")

	out := buf.String()
	if !strings.Contains(out, "WARN [levels_test>] careful") {
		t.Fatalf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "ERROR [levels_test>] broken") {
		t.Fatalf("missing error line: %q", out)
	}
}

func TestDebugPerService(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_specific"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	l.Debugf("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line printed while disabled")
	}

	EnableDebugFor(name)
	defer DisableDebugFor(name)
	l.Debugf("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug line after EnableDebugFor, got %q", buf.String())
	}
}

func TestDebugGlobal(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_global"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	SetGlobalDebug(true)
	defer SetGlobalDebug(false)

	l.Debugf("global visible")
	if !strings.Contains(buf.String(), "global visible") {
		t.Fatalf("expected debug line with global debug, got %q", buf.String())
	}
}

func TestEmptyNameFallsBack(t *testing.T) {
	if got := ForService("").Name(); got != "cmsmirror" {
		t.Fatalf("expected fallback name, got %q", got)
	}
}
