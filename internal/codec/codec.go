package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
)

// Wire temporal encodings count from 2000-01-01: dates as day offsets,
// timestamps as microsecond offsets.
const (
	pgEpochDays   = 10957
	pgEpochMicros = int64(946684800) * 1_000_000
)

// FormatText renders one result cell in the wire text format. The second
// return is false for SQL NULL.
func FormatText(col engine.Column, v any) (string, bool) {
	if v == nil {
		return "", false
	}
	switch x := v.(type) {
	case bool:
		if x {
			return "t", true
		}
		return "f", true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case string:
		return x, true
	case []byte:
		return `\x` + hex.EncodeToString(x), true
	case time.Time:
		switch col.Kind {
		case engine.KindDate:
			return x.UTC().Format("2006-01-02"), true
		case engine.KindTimestampTZ:
			return x.UTC().Format("2006-01-02 15:04:05.999999-07"), true
		default:
			return x.UTC().Format("2006-01-02 15:04:05.999999"), true
		}
	case time.Duration:
		if col.Kind == engine.KindTime {
			return clockFromMicros(x.Microseconds()), true
		}
		return intervalText(0, 0, x.Microseconds()), true
	case []any:
		return listLiteral(engine.Column{Kind: col.Elem}, x), true
	default:
		return fmt.Sprint(v), true
	}
}

// EncodeBinary renders one result cell in the wire binary format. The
// second return is false when the value has no binary form; callers then
// fall back to text.
func EncodeBinary(col engine.Column, v any) ([]byte, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return []byte{1}, true
		}
		return []byte{0}, true
	case int16:
		return be16(uint16(x)), true
	case int32:
		return be32(uint32(x)), true
	case int64:
		return be64(uint64(x)), true
	case int:
		return be64(uint64(int64(x))), true
	case float32:
		return be32(math.Float32bits(x)), true
	case float64:
		return be64(math.Float64bits(x)), true
	case string:
		if col.Kind == engine.KindDecimal {
			if b, err := EncodeNumeric(x); err == nil {
				return b, true
			}
			return nil, false
		}
		return []byte(x), true
	case []byte:
		return x, true
	case time.Time:
		switch col.Kind {
		case engine.KindDate:
			days := int32(x.Unix()/86400) - pgEpochDays
			return be32(uint32(days)), true
		default:
			return be64(uint64(x.UnixMicro() - pgEpochMicros)), true
		}
	case time.Duration:
		if col.Kind == engine.KindTime {
			return be64(uint64(x.Microseconds())), true
		}
		out := make([]byte, 16)
		binary.BigEndian.PutUint64(out[0:], uint64(x.Microseconds()))
		return out, true
	case []any:
		if b, err := EncodeArray(engine.Column{Kind: col.Elem}, x); err == nil {
			return b, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// ErrUnknownType marks a parameter OID the codec has no decoder for.
// Callers may fall back to the length heuristics in that case; any other
// decode error means the payload is malformed for its declared type and
// must not be reinterpreted.
var ErrUnknownType = errors.New("unrecognized parameter type")

// DecodeParam converts a binary parameter to the text form used for
// placeholder substitution.
func DecodeParam(oid uint32, b []byte) (string, error) {
	switch oid {
	case pgtype.BoolOID:
		if len(b) != 1 {
			return "", widthError("bool", 1, b)
		}
		if b[0] != 0 {
			return "true", nil
		}
		return "false", nil
	case pgtype.Int2OID:
		if len(b) != 2 {
			return "", widthError("int2", 2, b)
		}
		return strconv.FormatInt(int64(int16(binary.BigEndian.Uint16(b))), 10), nil
	case pgtype.Int4OID:
		if len(b) != 4 {
			return "", widthError("int4", 4, b)
		}
		return strconv.FormatInt(int64(int32(binary.BigEndian.Uint32(b))), 10), nil
	case pgtype.Int8OID:
		if len(b) != 8 {
			return "", widthError("int8", 8, b)
		}
		return strconv.FormatInt(int64(binary.BigEndian.Uint64(b)), 10), nil
	case pgtype.Float4OID:
		if len(b) != 4 {
			return "", widthError("float4", 4, b)
		}
		f := math.Float32frombits(binary.BigEndian.Uint32(b))
		return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
	case pgtype.Float8OID:
		if len(b) != 8 {
			return "", widthError("float8", 8, b)
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(b))
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID:
		return string(b), nil
	case pgtype.ByteaOID:
		return `\x` + hex.EncodeToString(b), nil
	case pgtype.NumericOID:
		return DecodeNumeric(b)
	case pgtype.DateOID:
		if len(b) != 4 {
			return "", widthError("date", 4, b)
		}
		days := int32(binary.BigEndian.Uint32(b))
		t := time.Unix(int64(days+pgEpochDays)*86400, 0).UTC()
		return t.Format("2006-01-02"), nil
	case pgtype.TimeOID:
		if len(b) != 8 {
			return "", widthError("time", 8, b)
		}
		return clockFromMicros(int64(binary.BigEndian.Uint64(b))), nil
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		if len(b) != 8 {
			return "", widthError("timestamp", 8, b)
		}
		micros := int64(binary.BigEndian.Uint64(b)) + pgEpochMicros
		t := time.UnixMicro(micros).UTC()
		if oid == pgtype.TimestamptzOID {
			return t.Format("2006-01-02 15:04:05.999999-07"), nil
		}
		return t.Format("2006-01-02 15:04:05.999999"), nil
	case pgtype.IntervalOID:
		if len(b) != 16 {
			return "", widthError("interval", 16, b)
		}
		micros := int64(binary.BigEndian.Uint64(b[0:]))
		days := int32(binary.BigEndian.Uint32(b[8:]))
		months := int32(binary.BigEndian.Uint32(b[12:]))
		return intervalText(months, days, micros), nil
	}
	if IsArrayOID(oid) {
		return DecodeArray(b)
	}
	return "", ErrUnknownType
}

func widthError(typeName string, want int, b []byte) error {
	return fmt.Errorf("%s value must be %d bytes, got %d", typeName, want, len(b))
}

// FallbackParam guesses a binary parameter's text form when no type OID is
// known for it: common integer widths by length, bool for a single byte,
// else the raw bytes as a string.
func FallbackParam(b []byte) string {
	switch len(b) {
	case 8:
		return strconv.FormatInt(int64(binary.BigEndian.Uint64(b)), 10)
	case 4:
		return strconv.FormatInt(int64(int32(binary.BigEndian.Uint32(b))), 10)
	case 2:
		return strconv.FormatInt(int64(int16(binary.BigEndian.Uint16(b))), 10)
	case 1:
		if b[0] != 0 {
			return "true"
		}
		return "false"
	default:
		return string(b)
	}
}

func clockFromMicros(micros int64) string {
	h := micros / 3_600_000_000
	micros -= h * 3_600_000_000
	m := micros / 60_000_000
	micros -= m * 60_000_000
	s := micros / 1_000_000
	micros -= s * 1_000_000
	if micros == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	frac := strings.TrimRight(fmt.Sprintf("%06d", micros), "0")
	return fmt.Sprintf("%02d:%02d:%02d.%s", h, m, s, frac)
}

func intervalText(months, days int32, micros int64) string {
	var parts []string
	if months != 0 {
		parts = append(parts, fmt.Sprintf("%d mon", months))
	}
	if days != 0 {
		parts = append(parts, fmt.Sprintf("%d days", days))
	}
	neg := micros < 0
	if neg {
		micros = -micros
	}
	clock := clockFromMicros(micros)
	if neg {
		clock = "-" + clock
	}
	if micros != 0 || len(parts) == 0 {
		parts = append(parts, clock)
	}
	return strings.Join(parts, " ")
}

func be16(v uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, v)
	return out
}

func be32(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

func be64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}
