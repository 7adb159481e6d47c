package codec

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
)

func TestTypeOIDMapping(t *testing.T) {
	cases := []struct {
		col  engine.Column
		want uint32
	}{
		{engine.Column{Kind: engine.KindBool}, pgtype.BoolOID},
		{engine.Column{Kind: engine.KindInt16}, pgtype.Int2OID},
		{engine.Column{Kind: engine.KindInt32}, pgtype.Int4OID},
		{engine.Column{Kind: engine.KindInt64}, pgtype.Int8OID},
		{engine.Column{Kind: engine.KindFloat32}, pgtype.Float4OID},
		{engine.Column{Kind: engine.KindFloat64}, pgtype.Float8OID},
		{engine.Column{Kind: engine.KindString}, pgtype.TextOID},
		{engine.Column{Kind: engine.KindBytes}, pgtype.ByteaOID},
		{engine.Column{Kind: engine.KindDate}, pgtype.DateOID},
		{engine.Column{Kind: engine.KindTime}, pgtype.TimeOID},
		{engine.Column{Kind: engine.KindTimestamp}, pgtype.TimestampOID},
		{engine.Column{Kind: engine.KindTimestampTZ}, pgtype.TimestamptzOID},
		{engine.Column{Kind: engine.KindDuration}, pgtype.IntervalOID},
		{engine.Column{Kind: engine.KindDecimal}, pgtype.NumericOID},
		{engine.Column{Kind: engine.KindUnknown}, pgtype.TextOID},
		{engine.Column{Kind: engine.KindList, Elem: engine.KindInt32}, pgtype.Int4ArrayOID},
		{engine.Column{Kind: engine.KindList, Elem: engine.KindString}, pgtype.TextArrayOID},
		{engine.Column{Kind: engine.KindList, Elem: engine.KindDecimal}, pgtype.NumericArrayOID},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TypeOID(tc.col), "kind %d elem %d", tc.col.Kind, tc.col.Elem)
	}
}

func TestElemOIDInvertsArrayOID(t *testing.T) {
	for _, k := range []engine.Kind{
		engine.KindBool, engine.KindInt16, engine.KindInt32, engine.KindInt64,
		engine.KindFloat32, engine.KindFloat64, engine.KindString, engine.KindBytes,
		engine.KindDate, engine.KindTime, engine.KindTimestamp, engine.KindTimestampTZ,
		engine.KindDecimal,
	} {
		arr := ArrayOID(k)
		require.True(t, IsArrayOID(arr), "kind %d", k)
		assert.Equal(t, ScalarOID(k), ElemOID(arr), "kind %d", k)
	}
	assert.False(t, IsArrayOID(pgtype.Int4OID))
}

func TestFormatText(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2024, 3, 15, 12, 30, 45, 123456000, time.UTC)

	cases := []struct {
		name string
		col  engine.Column
		in   any
		want string
	}{
		{"bool true", engine.Column{Kind: engine.KindBool}, true, "t"},
		{"bool false", engine.Column{Kind: engine.KindBool}, false, "f"},
		{"int32", engine.Column{Kind: engine.KindInt32}, int32(-7), "-7"},
		{"int64", engine.Column{Kind: engine.KindInt64}, int64(1 << 40), "1099511627776"},
		{"float64", engine.Column{Kind: engine.KindFloat64}, 2.5, "2.5"},
		{"string", engine.Column{Kind: engine.KindString}, "hello", "hello"},
		{"bytes", engine.Column{Kind: engine.KindBytes}, []byte{0xde, 0xad}, `\xdead`},
		{"date", engine.Column{Kind: engine.KindDate}, date, "2024-03-15"},
		{"timestamp", engine.Column{Kind: engine.KindTimestamp}, ts, "2024-03-15 12:30:45.123456"},
		{"time of day", engine.Column{Kind: engine.KindTime}, 90 * time.Minute, "01:30:00"},
		{"decimal", engine.Column{Kind: engine.KindDecimal}, "12.50", "12.50"},
		{"list", engine.Column{Kind: engine.KindList, Elem: engine.KindInt32}, []any{int32(1), nil, int32(3)}, "{1,NULL,3}"},
		{"text list quoting", engine.Column{Kind: engine.KindList, Elem: engine.KindString}, []any{`a"b`}, `{"a\"b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, notNull := FormatText(tc.col, tc.in)
			require.True(t, notNull)
			assert.Equal(t, tc.want, got)
		})
	}

	_, notNull := FormatText(engine.Column{Kind: engine.KindString}, nil)
	assert.False(t, notNull, "nil must be NULL")
}

func TestEncodeBinaryTemporals(t *testing.T) {
	// 2000-01-02 is day 1 of the wire date epoch.
	date := time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)
	b, ok := EncodeBinary(engine.Column{Kind: engine.KindDate}, date)
	require.True(t, ok)
	require.Len(t, b, 4)
	assert.Equal(t, int32(1), int32(binary.BigEndian.Uint32(b)))

	// One second past the timestamp epoch.
	ts := time.Date(2000, 1, 1, 0, 0, 1, 0, time.UTC)
	b, ok = EncodeBinary(engine.Column{Kind: engine.KindTimestamp}, ts)
	require.True(t, ok)
	require.Len(t, b, 8)
	assert.Equal(t, int64(1_000_000), int64(binary.BigEndian.Uint64(b)))

	b, ok = EncodeBinary(engine.Column{Kind: engine.KindTime}, 90*time.Minute)
	require.True(t, ok)
	assert.Equal(t, int64(90*60)*1_000_000, int64(binary.BigEndian.Uint64(b)))

	b, ok = EncodeBinary(engine.Column{Kind: engine.KindDuration}, 2*time.Second)
	require.True(t, ok)
	require.Len(t, b, 16)
	assert.Equal(t, int64(2_000_000), int64(binary.BigEndian.Uint64(b[:8])))
}

func TestDecodeParamScalars(t *testing.T) {
	i32 := make([]byte, 4)
	binary.BigEndian.PutUint32(i32, uint32(42))
	got, err := DecodeParam(pgtype.Int4OID, i32)
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	i64 := make([]byte, 8)
	binary.BigEndian.PutUint64(i64, uint64(1<<40))
	got, err = DecodeParam(pgtype.Int8OID, i64)
	require.NoError(t, err)
	assert.Equal(t, "1099511627776", got)

	f64 := make([]byte, 8)
	binary.BigEndian.PutUint64(f64, math.Float64bits(-2.5))
	got, err = DecodeParam(pgtype.Float8OID, f64)
	require.NoError(t, err)
	assert.Equal(t, "-2.5", got)

	got, err = DecodeParam(pgtype.BoolOID, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "true", got)

	got, err = DecodeParam(pgtype.TextOID, []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	num, err := EncodeNumeric("12.34")
	require.NoError(t, err)
	got, err = DecodeParam(pgtype.NumericOID, num)
	require.NoError(t, err)
	assert.Equal(t, "12.34", got)

	interval := make([]byte, 16)
	binary.BigEndian.PutUint64(interval[0:], uint64(3_600_000_000)) // 1h
	binary.BigEndian.PutUint32(interval[8:], 2)                     // days
	binary.BigEndian.PutUint32(interval[12:], 1)                    // months
	got, err = DecodeParam(pgtype.IntervalOID, interval)
	require.NoError(t, err)
	assert.Equal(t, "1 mon 2 days 01:00:00", got)

	_, err = DecodeParam(999999, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrUnknownType, "unknown OID must defer to fallback")
}

func TestDecodeParamRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name string
		oid  uint32
		b    []byte
	}{
		{"int4 wrong width", pgtype.Int4OID, []byte("42")},
		{"int2 too long", pgtype.Int2OID, []byte{0, 0, 0, 1}},
		{"int8 truncated", pgtype.Int8OID, []byte{0, 0, 0, 1}},
		{"float8 truncated", pgtype.Float8OID, []byte{0, 0}},
		{"bool too long", pgtype.BoolOID, []byte{1, 0}},
		{"date wrong width", pgtype.DateOID, []byte{1}},
		{"timestamp truncated", pgtype.TimestampOID, []byte{0, 0, 0, 0}},
		{"interval truncated", pgtype.IntervalOID, []byte{0, 0, 0, 0, 0, 0, 0, 0}},
		{"numeric garbage", pgtype.NumericOID, []byte{0xFF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeParam(tc.oid, tc.b)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrUnknownType,
				"a known type with a bad payload must not fall through to the heuristics")
		})
	}
}

func TestFallbackParamHeuristics(t *testing.T) {
	b8 := make([]byte, 8)
	binary.BigEndian.PutUint64(b8, 77)
	assert.Equal(t, "77", FallbackParam(b8))

	b4 := make([]byte, 4)
	binary.BigEndian.PutUint32(b4, uint32(0xFFFFFFFF))
	assert.Equal(t, "-1", FallbackParam(b4))

	b2 := make([]byte, 2)
	binary.BigEndian.PutUint16(b2, 300)
	assert.Equal(t, "300", FallbackParam(b2))

	assert.Equal(t, "true", FallbackParam([]byte{1}))
	assert.Equal(t, "false", FallbackParam([]byte{0}))
	assert.Equal(t, "hello", FallbackParam([]byte("hello")))
}
