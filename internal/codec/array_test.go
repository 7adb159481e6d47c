package codec

import (
	"encoding/binary"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
)

func TestArrayRoundTripToLiteral(t *testing.T) {
	b, err := EncodeArray(engine.Column{Kind: engine.KindInt32}, []any{int32(1), nil, int32(3)})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(b), 20)
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[0:]), "ndims")
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[4:]), "null flag")
	assert.Equal(t, uint32(pgtype.Int4OID), binary.BigEndian.Uint32(b[8:]), "element oid")
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(b[12:]), "length")
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[16:]), "lower bound")

	lit, err := DecodeArray(b)
	require.NoError(t, err)
	assert.Equal(t, "{1,NULL,3}", lit)
}

func TestEmptyArray(t *testing.T) {
	b, err := EncodeArray(engine.Column{Kind: engine.KindString}, nil)
	require.NoError(t, err)
	require.Len(t, b, 12)
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(b[0:]), "ndims")

	lit, err := DecodeArray(b)
	require.NoError(t, err)
	assert.Equal(t, "{}", lit)
}

func TestTextArrayElementQuoting(t *testing.T) {
	b, err := EncodeArray(engine.Column{Kind: engine.KindString}, []any{`plain`, `with "quote"`, `back\slash`})
	require.NoError(t, err)

	lit, err := DecodeArray(b)
	require.NoError(t, err)
	assert.Equal(t, `{"plain","with \"quote\"","back\\slash"}`, lit)
}

func TestDecodeArrayRejectsMultipleDimensions(t *testing.T) {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:], 2)
	binary.BigEndian.PutUint32(b[8:], pgtype.Int4OID)
	_, err := DecodeArray(b)
	assert.Error(t, err)
}

func TestDecodeArrayTruncated(t *testing.T) {
	_, err := DecodeArray([]byte{0, 0})
	assert.Error(t, err)

	// Header promises one element but carries none.
	b := make([]byte, 20)
	binary.BigEndian.PutUint32(b[0:], 1)
	binary.BigEndian.PutUint32(b[8:], pgtype.Int4OID)
	binary.BigEndian.PutUint32(b[12:], 1)
	binary.BigEndian.PutUint32(b[16:], 1)
	_, err = DecodeArray(b)
	assert.Error(t, err)
}

func TestCanonicalizeArrayLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ARRAY[1,2,3]", "{1,2,3}"},
		{"array[1,2]", "{1,2}"},
		{"[4,5,6]", "{4,5,6}"},
		{"{7,8}", "{7,8}"},
		{"not an array", "not an array"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalizeArrayLiteral(tc.in), "input %q", tc.in)
	}
}
