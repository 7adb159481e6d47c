// Package codec translates between engine values and PostgreSQL wire
// representations: type OIDs, text cells, and the binary formats for
// integers, floats, temporals, NUMERIC and one-dimensional arrays.
package codec

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
)

// TypeOID maps a result column to the OID advertised in RowDescription.
// Kinds without a mapping fall back to text.
func TypeOID(c engine.Column) uint32 {
	if c.Kind == engine.KindList {
		return ArrayOID(c.Elem)
	}
	return ScalarOID(c.Kind)
}

func ScalarOID(k engine.Kind) uint32 {
	switch k {
	case engine.KindBool:
		return pgtype.BoolOID
	case engine.KindInt16:
		return pgtype.Int2OID
	case engine.KindInt32:
		return pgtype.Int4OID
	case engine.KindInt64:
		return pgtype.Int8OID
	case engine.KindFloat32:
		return pgtype.Float4OID
	case engine.KindFloat64:
		return pgtype.Float8OID
	case engine.KindBytes:
		return pgtype.ByteaOID
	case engine.KindDate:
		return pgtype.DateOID
	case engine.KindTime:
		return pgtype.TimeOID
	case engine.KindTimestamp:
		return pgtype.TimestampOID
	case engine.KindTimestampTZ:
		return pgtype.TimestamptzOID
	case engine.KindDuration:
		return pgtype.IntervalOID
	case engine.KindDecimal:
		return pgtype.NumericOID
	default:
		return pgtype.TextOID
	}
}

// ArrayOID maps a list element kind to the array type OID.
func ArrayOID(elem engine.Kind) uint32 {
	switch elem {
	case engine.KindBool:
		return pgtype.BoolArrayOID
	case engine.KindInt16:
		return pgtype.Int2ArrayOID
	case engine.KindInt32:
		return pgtype.Int4ArrayOID
	case engine.KindInt64:
		return pgtype.Int8ArrayOID
	case engine.KindFloat32:
		return pgtype.Float4ArrayOID
	case engine.KindFloat64:
		return pgtype.Float8ArrayOID
	case engine.KindBytes:
		return pgtype.ByteaArrayOID
	case engine.KindDate:
		return pgtype.DateArrayOID
	case engine.KindTimestamp:
		return pgtype.TimestampArrayOID
	case engine.KindTimestampTZ:
		return pgtype.TimestamptzArrayOID
	case engine.KindTime:
		return pgtype.TimeArrayOID
	case engine.KindDecimal:
		return pgtype.NumericArrayOID
	default:
		return pgtype.TextArrayOID
	}
}

// IsArrayOID reports whether oid names one of the array types the codec
// understands.
func IsArrayOID(oid uint32) bool {
	return ElemOID(oid) != 0
}

// ElemOID returns the element OID of a known array OID, or 0.
func ElemOID(oid uint32) uint32 {
	switch oid {
	case pgtype.BoolArrayOID:
		return pgtype.BoolOID
	case pgtype.ByteaArrayOID:
		return pgtype.ByteaOID
	case pgtype.Int2ArrayOID:
		return pgtype.Int2OID
	case pgtype.Int4ArrayOID:
		return pgtype.Int4OID
	case pgtype.Int8ArrayOID:
		return pgtype.Int8OID
	case pgtype.Float4ArrayOID:
		return pgtype.Float4OID
	case pgtype.Float8ArrayOID:
		return pgtype.Float8OID
	case pgtype.TextArrayOID:
		return pgtype.TextOID
	case pgtype.DateArrayOID:
		return pgtype.DateOID
	case pgtype.TimeArrayOID:
		return pgtype.TimeOID
	case pgtype.TimestampArrayOID:
		return pgtype.TimestampOID
	case pgtype.TimestamptzArrayOID:
		return pgtype.TimestamptzOID
	case pgtype.NumericArrayOID:
		return pgtype.NumericOID
	default:
		return 0
	}
}
