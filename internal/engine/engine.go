// Package engine defines the boundary between the wire front end and the
// Clarium SQL engine. The front end never parses or plans SQL itself; it
// hands finished statement text to an Engine and frames whatever comes back.
package engine

import (
	"context"
	"fmt"
)

// Kind identifies the engine's internal value kinds. The wire layer maps
// these to protocol type OIDs; kinds without a mapping travel as text.
type Kind int

const (
	KindUnknown Kind = iota
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
	KindDate
	KindTime
	KindTimestamp
	KindTimestampTZ
	KindDuration
	KindDecimal
	KindList
)

// Column describes one output column. Elem is meaningful only when Kind is
// KindList and names the element kind of the one-dimensional list.
type Column struct {
	Name string
	Kind Kind
	Elem Kind
}

// Result is the engine's answer to a single statement. Columns is non-nil
// for row-returning statements, even when Rows is empty. Affected carries
// the row count for DML and the saved count for CALCULATE.
//
// Row cells use the Go types bool, int16, int32, int64, float32, float64,
// string, []byte, time.Time (date and timestamps), time.Duration (time of
// day and durations), string (decimals) and []any (lists). nil is SQL NULL.
type Result struct {
	Columns  []Column
	Rows     [][]any
	Affected int64
}

// Defaults carries the session's current database and schema so the engine
// can qualify bare object names.
type Defaults struct {
	Database string
	Schema   string
}

// Engine executes SQL on behalf of a connection handler. Implementations
// must be safe for concurrent use: every connection shares one Engine.
type Engine interface {
	// Execute runs one statement and returns its result.
	Execute(ctx context.Context, sql string, d Defaults) (*Result, error)

	// Shape resolves the output columns of a statement without running it,
	// where feasible. Used by Describe to avoid executing side effects.
	Shape(ctx context.Context, sql string, d Defaults) ([]Column, error)
}

// Error is a structured engine failure carrying the fields the wire layer
// needs for an ErrorResponse. Engines may return plain errors; those get a
// generic mapping.
type Error struct {
	Code     string // SQLSTATE
	Severity string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
