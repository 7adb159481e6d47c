// Package enginetest provides a scripted Engine for tests and the demo
// server. Results are canned per statement text; every executed statement
// is recorded for later inspection.
package enginetest

import (
	"context"
	"strings"
	"sync"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
)

// Script is the canned outcome for one statement.
type Script struct {
	Result *engine.Result
	Shape  []engine.Column
	Err    error
}

// Engine replays scripted results keyed by trimmed statement text.
// Unscripted statements succeed with an empty command result so that
// DDL-shaped traffic does not need a script per statement.
type Engine struct {
	mu       sync.Mutex
	scripts  map[string]Script
	executed []string
}

func New() *Engine {
	return &Engine{scripts: make(map[string]Script)}
}

// Script registers a canned outcome for sql (matched after trimming
// whitespace and trailing semicolons).
func (e *Engine) Script(sql string, s Script) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[normalize(sql)] = s
}

// Executed returns a copy of every statement passed to Execute, in order.
func (e *Engine) Executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.executed))
	copy(out, e.executed)
	return out
}

func (e *Engine) Execute(_ context.Context, sql string, _ engine.Defaults) (*engine.Result, error) {
	e.mu.Lock()
	e.executed = append(e.executed, sql)
	s, ok := e.scripts[normalize(sql)]
	e.mu.Unlock()
	if !ok {
		return &engine.Result{}, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return &engine.Result{Columns: s.Shape}, nil
}

func (e *Engine) Shape(_ context.Context, sql string, _ engine.Defaults) ([]engine.Column, error) {
	e.mu.Lock()
	s, ok := e.scripts[normalize(sql)]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Shape != nil {
		return s.Shape, nil
	}
	if s.Result != nil {
		return s.Result.Columns, nil
	}
	return nil, nil
}

func normalize(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), ";")
}
