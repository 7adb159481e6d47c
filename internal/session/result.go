package session

import (
	"fmt"
	"strings"

	"github.com/euanmacinnes/clarium-sub003/internal/codec"
	"github.com/euanmacinnes/clarium-sub003/internal/engine"
	"github.com/euanmacinnes/clarium-sub003/internal/pgwire"
)

// writeRowDescription emits one field entry per column: name, table OID 0,
// attribute 0, type OID, typlen -1, typmod 0, format code.
func writeRowDescription(conn *pgwire.Conn, cols []engine.Column, formats []int16) error {
	buf := pgwire.NewBuffer(64 + 32*len(cols))
	buf.WriteInt16(int16(len(cols)))
	for i, col := range cols {
		buf.WriteString(col.Name)
		buf.WriteInt32(0)
		buf.WriteInt16(0)
		buf.WriteUint32(codec.TypeOID(col))
		buf.WriteInt16(-1)
		buf.WriteInt32(0)
		buf.WriteInt16(formatAt(formats, i))
	}
	return conn.WriteMessage(pgwire.MsgRowDescription, buf.Bytes())
}

// writeDataRow emits one cell per column in the negotiated format. NULL is
// length -1 with no payload. Binary cells without a binary form fall back
// to their text bytes.
func writeDataRow(conn *pgwire.Conn, cols []engine.Column, row []any, formats []int16) error {
	buf := pgwire.NewBuffer(64 + 16*len(cols))
	buf.WriteInt16(int16(len(cols)))
	for i, col := range cols {
		var cell any
		if i < len(row) {
			cell = row[i]
		}
		if cell == nil {
			buf.WriteInt32(-1)
			continue
		}
		var payload []byte
		if formatAt(formats, i) == 1 {
			if b, ok := codec.EncodeBinary(col, cell); ok {
				payload = b
			}
		}
		if payload == nil {
			s, _ := codec.FormatText(col, cell)
			payload = []byte(s)
		}
		buf.WriteInt32(int32(len(payload)))
		buf.WriteBytes(payload)
	}
	return conn.WriteMessage(pgwire.MsgDataRow, buf.Bytes())
}

func formatAt(formats []int16, i int) int16 {
	if i < len(formats) {
		return formats[i]
	}
	return 0
}

// resolveFormats expands Bind's result format codes against the actual
// column count: none means all text, one applies uniformly, a full set is
// taken per column, anything else degrades to text.
func resolveFormats(formats []int16, ncols int) []int16 {
	out := make([]int16, ncols)
	switch len(formats) {
	case 0:
	case 1:
		for i := range out {
			out[i] = formats[0]
		}
	case ncols:
		copy(out, formats)
	}
	return out
}

// isRowReturning classifies a statement by its leading keyword, examining
// at most the first 32 characters.
func isRowReturning(sql string) bool {
	head := strings.TrimSpace(sql)
	if len(head) > 32 {
		head = head[:32]
	}
	head = strings.ToUpper(head)
	return strings.HasPrefix(head, "SELECT") ||
		strings.HasPrefix(head, "WITH ") ||
		strings.HasPrefix(head, "SHOW ")
}

// commandTag derives the CommandComplete tag from the statement verb and
// the engine result.
func commandTag(sql string, res *engine.Result) string {
	first, second := leadingWords(sql)
	switch first {
	case "SELECT", "WITH":
		return fmt.Sprintf("SELECT %d", len(res.Rows))
	case "SHOW":
		return fmt.Sprintf("SHOW %d", len(res.Rows))
	case "CALCULATE":
		return fmt.Sprintf("CALCULATE %d", res.Affected)
	case "DELETE":
		return "DELETE"
	case "UPDATE":
		return "UPDATE"
	case "SET":
		return "SET"
	case "BEGIN", "START":
		return "BEGIN"
	case "COMMIT", "END":
		return "COMMIT"
	case "ROLLBACK":
		return "ROLLBACK"
	case "CREATE":
		if second == "TABLE" {
			return "CREATE TABLE"
		}
		return fmt.Sprintf("OK %d", res.Affected)
	default:
		if res.Affected > 0 {
			return fmt.Sprintf("OK %d", res.Affected)
		}
		return "OK"
	}
}

func leadingWords(sql string) (string, string) {
	fields := strings.Fields(strings.ToUpper(sql))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], fields[1]
	}
}

func isBegin(sql string) bool {
	first, _ := leadingWords(sql)
	return first == "BEGIN" || first == "START"
}

func isCommit(sql string) bool {
	first, _ := leadingWords(sql)
	return first == "COMMIT" || first == "END"
}

func isRollback(sql string) bool {
	first, _ := leadingWords(sql)
	return first == "ROLLBACK"
}
