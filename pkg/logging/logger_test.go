package logging

import "testing"

func TestNewLoggerWithService(t *testing.T) {
	l := NewLoggerWithService("streamserver")
	entry := l.WithField("stream_key", "abc")
	if entry == nil {
		t.Fatalf("expected non-nil entry")
	}
}

func TestSetVerbose(t *testing.T) {
	l := NewLogger()
	SetVerbose(l)
	if l.GetLevel() != DebugLevel {
		t.Fatalf("expected debug level, got %v", l.GetLevel())
	}
}
