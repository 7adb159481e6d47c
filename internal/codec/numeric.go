package codec

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// NUMERIC travels as base-10000 digit groups aligned to the decimal point:
// int16 ndigits, weight (power of 10000 of the first group), sign, dscale,
// then ndigits int16 groups. Sign 0x4000 is negative, 0xC000 is NaN.
const (
	numericPos = 0x0000
	numericNeg = 0x4000
	numericNaN = 0xC000
)

// EncodeNumeric converts a decimal string to the binary NUMERIC payload.
// Leading and trailing zero groups are stripped; dscale preserves the
// declared scale of the input.
func EncodeNumeric(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		out := make([]byte, 8)
		binary.BigEndian.PutUint16(out[4:], numericNaN)
		return out, nil
	}
	sign := uint16(numericPos)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = numericNeg
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("invalid numeric literal %q", s)
	}
	for _, part := range []string{intPart, fracPart} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("invalid numeric literal %q", s)
			}
		}
	}
	dscale := uint16(len(fracPart))

	intPart = strings.TrimLeft(intPart, "0")
	fracPart = strings.TrimRight(fracPart, "0")

	// Pad so groups of four decimal digits align on the decimal point.
	for len(intPart)%4 != 0 {
		intPart = "0" + intPart
	}
	for len(fracPart)%4 != 0 {
		fracPart += "0"
	}
	weight := len(intPart)/4 - 1

	var groups []int16
	all := intPart + fracPart
	for i := 0; i < len(all); i += 4 {
		var g int16
		for _, c := range all[i : i+4] {
			g = g*10 + int16(c-'0')
		}
		groups = append(groups, g)
	}
	for len(groups) > 0 && groups[0] == 0 {
		groups = groups[1:]
		weight--
	}
	for len(groups) > 0 && groups[len(groups)-1] == 0 {
		groups = groups[:len(groups)-1]
	}
	if len(groups) == 0 {
		sign = numericPos
		weight = 0
	}

	out := make([]byte, 8+2*len(groups))
	binary.BigEndian.PutUint16(out[0:], uint16(len(groups)))
	binary.BigEndian.PutUint16(out[2:], uint16(int16(weight)))
	binary.BigEndian.PutUint16(out[4:], sign)
	binary.BigEndian.PutUint16(out[6:], dscale)
	for i, g := range groups {
		binary.BigEndian.PutUint16(out[8+2*i:], uint16(g))
	}
	return out, nil
}

// DecodeNumeric renders a binary NUMERIC payload back to a decimal string.
func DecodeNumeric(b []byte) (string, error) {
	if len(b) < 8 {
		return "", fmt.Errorf("numeric payload too short: %d bytes", len(b))
	}
	ndigits := int(int16(binary.BigEndian.Uint16(b[0:])))
	weight := int(int16(binary.BigEndian.Uint16(b[2:])))
	sign := binary.BigEndian.Uint16(b[4:])
	dscale := int(int16(binary.BigEndian.Uint16(b[6:])))
	if sign == numericNaN {
		return "NaN", nil
	}
	if ndigits < 0 || len(b) < 8+2*ndigits {
		return "", fmt.Errorf("numeric payload truncated: %d groups, %d bytes", ndigits, len(b))
	}
	if dscale < 0 {
		dscale = 0
	}
	if ndigits == 0 {
		return zeroNumeric(dscale), nil
	}

	var all strings.Builder
	for i := 0; i < ndigits; i++ {
		fmt.Fprintf(&all, "%04d", binary.BigEndian.Uint16(b[8+2*i:]))
	}
	digits := all.String()

	// The decimal point sits after (weight+1) groups from the start.
	dp := (weight + 1) * 4
	var intPart, fracPart string
	switch {
	case dp <= 0:
		intPart = "0"
		fracPart = strings.Repeat("0", -dp) + digits
	case dp >= len(digits):
		intPart = digits + strings.Repeat("0", dp-len(digits))
	default:
		intPart = digits[:dp]
		fracPart = digits[dp:]
	}
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) < dscale {
		fracPart += strings.Repeat("0", dscale-len(fracPart))
	}
	for len(fracPart) > dscale && strings.HasSuffix(fracPart, "0") {
		fracPart = fracPart[:len(fracPart)-1]
	}

	var out strings.Builder
	if sign == numericNeg {
		out.WriteByte('-')
	}
	out.WriteString(intPart)
	if fracPart != "" {
		out.WriteByte('.')
		out.WriteString(fracPart)
	}
	return out.String(), nil
}

func zeroNumeric(dscale int) string {
	if dscale == 0 {
		return "0"
	}
	return "0." + strings.Repeat("0", dscale)
}
