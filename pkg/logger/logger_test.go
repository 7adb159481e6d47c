package logger

import (
	"testing"

	"github.com/charmbracelet/log"
)

func TestSetLevel(t *testing.T) {
	prev := std.GetLevel()
	t.Cleanup(func() { std.SetLevel(prev) })

	SetLevel("debug")
	if got := std.GetLevel(); got != log.DebugLevel {
		t.Errorf("after SetLevel(debug): got %v", got)
	}

	SetLevel("error")
	if got := std.GetLevel(); got != log.ErrorLevel {
		t.Errorf("after SetLevel(error): got %v", got)
	}

	// An unparseable name leaves the level alone.
	SetLevel("shouting")
	if got := std.GetLevel(); got != log.ErrorLevel {
		t.Errorf("after SetLevel(shouting): got %v", got)
	}
}

func TestWithCarriesContext(t *testing.T) {
	if With("conn", 7) == nil {
		t.Fatal("With returned nil")
	}
}
