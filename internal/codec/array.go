package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
)

// Binary array layout: int32 ndims, int32 null flag, uint32 element OID,
// then per dimension int32 length and int32 lower bound, then each element
// as int32 length plus payload (-1 for NULL). Only one dimension is
// supported; empty lists use ndims 0.

// EncodeArray renders a one-dimensional list in the wire binary format.
func EncodeArray(elem engine.Column, vals []any) ([]byte, error) {
	elemOID := ScalarOID(elem.Kind)
	var out []byte
	if len(vals) == 0 {
		out = append(out, be32(0)...)
		out = append(out, be32(0)...)
		out = append(out, be32(elemOID)...)
		return out, nil
	}
	hasNull := uint32(0)
	for _, v := range vals {
		if v == nil {
			hasNull = 1
			break
		}
	}
	out = append(out, be32(1)...)
	out = append(out, be32(hasNull)...)
	out = append(out, be32(elemOID)...)
	out = append(out, be32(uint32(len(vals)))...)
	out = append(out, be32(1)...)
	for _, v := range vals {
		if v == nil {
			out = append(out, be32(0xFFFFFFFF)...)
			continue
		}
		payload, ok := EncodeBinary(elem, v)
		if !ok {
			s, _ := FormatText(elem, v)
			payload = []byte(s)
		}
		out = append(out, be32(uint32(len(payload)))...)
		out = append(out, payload...)
	}
	return out, nil
}

// DecodeArray converts a binary array parameter to the brace literal used
// for placeholder substitution. The element OID is taken from the header.
func DecodeArray(b []byte) (string, error) {
	if len(b) < 12 {
		return "", fmt.Errorf("array payload too short: %d bytes", len(b))
	}
	ndims := int32(binary.BigEndian.Uint32(b[0:]))
	elemOID := binary.BigEndian.Uint32(b[8:])
	if ndims == 0 {
		return "{}", nil
	}
	if ndims != 1 {
		return "", fmt.Errorf("unsupported array dimensionality %d", ndims)
	}
	if len(b) < 20 {
		return "", fmt.Errorf("array payload truncated")
	}
	n := int(int32(binary.BigEndian.Uint32(b[12:])))
	if n < 0 {
		return "", fmt.Errorf("negative array length %d", n)
	}
	pos := 20
	elems := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if pos+4 > len(b) {
			return "", fmt.Errorf("array payload truncated at element %d", i)
		}
		elen := int(int32(binary.BigEndian.Uint32(b[pos:])))
		pos += 4
		if elen == -1 {
			elems = append(elems, "NULL")
			continue
		}
		if elen < 0 || pos+elen > len(b) {
			return "", fmt.Errorf("array payload truncated at element %d", i)
		}
		text, err := DecodeParam(elemOID, b[pos:pos+elen])
		if errors.Is(err, ErrUnknownType) {
			text = FallbackParam(b[pos : pos+elen])
		} else if err != nil {
			return "", fmt.Errorf("array element %d: %w", i, err)
		}
		elems = append(elems, quoteArrayElem(elemOID, text))
		pos += elen
	}
	return "{" + strings.Join(elems, ",") + "}", nil
}

// CanonicalizeArrayLiteral rewrites ARRAY[...] and bare [...] forms to the
// brace literal the engine ingests.
func CanonicalizeArrayLiteral(s string) string {
	trimmed := strings.TrimSpace(s)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "ARRAY[") && strings.HasSuffix(trimmed, "]") {
		return "{" + trimmed[6:len(trimmed)-1] + "}"
	}
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		return "{" + trimmed[1:len(trimmed)-1] + "}"
	}
	return s
}

func listLiteral(elem engine.Column, vals []any) string {
	elems := make([]string, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			elems = append(elems, "NULL")
			continue
		}
		s, _ := FormatText(elem, v)
		elems = append(elems, quoteArrayElem(ScalarOID(elem.Kind), s))
	}
	return "{" + strings.Join(elems, ",") + "}"
}

// Numeric-looking elements stay bare; everything else is double-quoted with
// backslash escaping, matching the array literal grammar.
func quoteArrayElem(elemOID uint32, text string) string {
	switch elemOID {
	case pgtype.BoolOID, pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID,
		pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return text
	}
	var out strings.Builder
	out.WriteByte('"')
	for _, r := range text {
		if r == '"' || r == '\\' {
			out.WriteByte('\\')
		}
		out.WriteRune(r)
	}
	out.WriteByte('"')
	return out.String()
}
