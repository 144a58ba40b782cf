package logger

import (
	"errors"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"}, "zenyx")
	if !errors.Is(err, ErrInvalidLogLevel) {
		t.Fatalf("err = %v, want ErrInvalidLogLevel", err)
	}
}

func TestNewConsole(t *testing.T) {
	l, err := New(&Config{Level: "debug", Format: "console", Output: "stderr"}, "zenyx")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Debug("ok")
}
