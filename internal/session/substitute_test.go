package session

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestSubstituteIndexed(t *testing.T) {
	got, err := substitute("SELECT * FROM t WHERE a = $1 AND b = $2",
		[]*string{str("x"), str("7")},
		[]uint32{pgtype.TextOID, pgtype.Int4OID})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = 'x' AND b = 7", got)
}

func TestSubstituteIndexedRepeated(t *testing.T) {
	got, err := substitute("SELECT $1, $1, $2",
		[]*string{str("a"), str("b")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 'a', 'a', 'b'", got)
}

func TestSubstituteIndexedExtraParamsAllowed(t *testing.T) {
	got, err := substitute("SELECT $1", []*string{str("a"), str("b")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 'a'", got)
}

func TestSubstituteIndexedMissingParam(t *testing.T) {
	_, err := substitute("SELECT $1, $3", []*string{str("a"), str("b")}, nil)
	assert.Error(t, err)
}

func TestSubstituteNamed(t *testing.T) {
	got, err := substitute("SELECT * FROM t WHERE a = %(name)s AND b = %(count)s AND c = %(name)s",
		[]*string{str("bob"), str("3")},
		[]uint32{pgtype.TextOID, pgtype.Int4OID})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = 'bob' AND b = 3 AND c = 'bob'", got)
}

func TestSubstituteNamedCountMismatch(t *testing.T) {
	_, err := substitute("SELECT %(a)s", []*string{str("x"), str("y")}, nil)
	assert.Error(t, err)

	_, err = substitute("SELECT %(a)s, %(b)s", []*string{str("x")}, nil)
	assert.Error(t, err)
}

func TestSubstitutePositional(t *testing.T) {
	got, err := substitute("INSERT INTO t VALUES (%s, %s)",
		[]*string{str("it's"), str("2")},
		[]uint32{pgtype.TextOID, pgtype.Int4OID})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t VALUES ('it''s', 2)", got)
}

func TestSubstitutePositionalCountMismatch(t *testing.T) {
	_, err := substitute("SELECT %s, %s", []*string{str("only")}, nil)
	assert.Error(t, err)

	_, err = substitute("SELECT 1", []*string{str("extra")}, nil)
	assert.Error(t, err)
}

func TestSubstituteNull(t *testing.T) {
	got, err := substitute("UPDATE t SET a = $1, b = $2",
		[]*string{nil, str("keep")},
		[]uint32{pgtype.TextOID, pgtype.TextOID})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t SET a = NULL, b = 'keep'", got)
}

func TestSubstituteRawTypesSkipQuoting(t *testing.T) {
	got, err := substitute("SELECT $1, $2, $3",
		[]*string{str("true"), str("42"), str("2.5")},
		[]uint32{pgtype.BoolOID, pgtype.Int8OID, pgtype.Float8OID})
	require.NoError(t, err)
	assert.Equal(t, "SELECT true, 42, 2.5", got)
}

func TestSubstituteQuotesUnknownTypes(t *testing.T) {
	// Missing OID information must quote, never inject raw.
	got, err := substitute("SELECT $1", []*string{str("12.34")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT '12.34'", got)

	// Numeric is carried as text and stays quoted too.
	got, err = substitute("SELECT $1", []*string{str("12.34")}, []uint32{pgtype.NumericOID})
	require.NoError(t, err)
	assert.Equal(t, "SELECT '12.34'", got)
}

func TestSubstituteNoPlaceholders(t *testing.T) {
	got, err := substitute("SELECT 1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", quoteLiteral("plain"))
	assert.Equal(t, "'it''s'", quoteLiteral("it's"))
	assert.Equal(t, "''''''", quoteLiteral("''"))
}
