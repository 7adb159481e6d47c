package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/euanmacinnes/clarium-sub003/internal/codec"
	"github.com/euanmacinnes/clarium-sub003/internal/pgwire"
)

// handleParse registers a prepared statement. When the client declares no
// parameter types they are inferred from the $n placeholders in the text,
// refined by any ::type casts attached to them.
func (s *Session) handleParse(payload []byte) error {
	buf := pgwire.ParsePayload(payload)
	name, err := buf.ReadString()
	if err != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Parse message")
	}
	sql, err := buf.ReadString()
	if err != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Parse message")
	}
	n, err := buf.ReadInt16()
	if err != nil || n < 0 {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Parse message")
	}
	oids := make([]uint32, 0, n)
	for i := int16(0); i < n; i++ {
		oid, err := buf.ReadUint32()
		if err != nil {
			return s.extendedError(pgerrcode.ProtocolViolation, "malformed Parse message")
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		oids = inferParamOIDs(sql)
	}

	s.state.Statements[name] = &pgwire.PreparedStatement{
		Name:      name,
		SQL:       sql,
		ParamOIDs: oids,
	}
	return s.conn.WriteMessage(pgwire.MsgParseComplete, nil)
}

// handleBind creates a portal from a prepared statement, decoding every
// parameter to its text form up front.
func (s *Session) handleBind(payload []byte) error {
	buf := pgwire.ParsePayload(payload)
	portalName, err1 := buf.ReadString()
	stmtName, err2 := buf.ReadString()
	if err1 != nil || err2 != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
	}
	stmt, ok := s.state.Statements[stmtName]
	if !ok {
		return s.extendedError(pgerrcode.InvalidSQLStatementName,
			fmt.Sprintf("prepared statement %q does not exist", stmtName))
	}

	nfmt, err := buf.ReadInt16()
	if err != nil || nfmt < 0 {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
	}
	paramFormats := make([]int16, 0, nfmt)
	for i := int16(0); i < nfmt; i++ {
		f, err := buf.ReadInt16()
		if err != nil {
			return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
		}
		paramFormats = append(paramFormats, f)
	}

	nparams, err := buf.ReadInt16()
	if err != nil || nparams < 0 {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
	}

	// Format codes: none means all text, one is uniform, otherwise the
	// count must match the parameters exactly. On mismatch no portal is
	// created.
	formatFor := func(i int) int16 { return 0 }
	switch len(paramFormats) {
	case 0:
	case 1:
		formatFor = func(int) int16 { return paramFormats[0] }
	case int(nparams):
		formatFor = func(i int) int16 { return paramFormats[i] }
	default:
		return s.extendedError(pgerrcode.ProtocolViolation,
			fmt.Sprintf("bind message has %d parameter format codes but %d parameters", len(paramFormats), nparams))
	}

	params := make([]*string, 0, nparams)
	for i := 0; i < int(nparams); i++ {
		length, err := buf.ReadInt32()
		if err != nil {
			return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
		}
		if length == -1 {
			params = append(params, nil)
			continue
		}
		raw, err := buf.ReadBytes(int(length))
		if err != nil {
			return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
		}
		var oid uint32
		if i < len(stmt.ParamOIDs) {
			oid = stmt.ParamOIDs[i]
		}
		text, err := decodeParam(oid, raw, formatFor(i))
		if err != nil {
			return s.extendedError(pgerrcode.InvalidBinaryRepresentation,
				fmt.Sprintf("invalid binary value for parameter $%d: %v", i+1, err))
		}
		params = append(params, &text)
	}

	nres, err := buf.ReadInt16()
	if err != nil || nres < 0 {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
	}
	resultFormats := make([]int16, 0, nres)
	for i := int16(0); i < nres; i++ {
		f, err := buf.ReadInt16()
		if err != nil {
			return s.extendedError(pgerrcode.ProtocolViolation, "malformed Bind message")
		}
		resultFormats = append(resultFormats, f)
	}

	s.state.Portals[portalName] = &pgwire.Portal{
		Name:          portalName,
		StatementName: stmtName,
		Params:        params,
		ResultFormats: resultFormats,
	}
	return s.conn.WriteMessage(pgwire.MsgBindComplete, nil)
}

// decodeParam converts one bound parameter to the text form used by
// substitution. Binary values of unknown types fall back to length-based
// guesses; a malformed payload for a known type is an error. Text-format
// array literals are canonicalized to braces.
func decodeParam(oid uint32, raw []byte, format int16) (string, error) {
	if format == 1 {
		text, err := codec.DecodeParam(oid, raw)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, codec.ErrUnknownType) {
			return codec.FallbackParam(raw), nil
		}
		return "", err
	}
	text := string(raw)
	if codec.IsArrayOID(oid) {
		return codec.CanonicalizeArrayLiteral(text), nil
	}
	return text, nil
}

// handleDescribe answers shape queries. A missing target is answered
// leniently with NoData rather than an error; clients issue speculative
// describes routinely.
func (s *Session) handleDescribe(ctx context.Context, payload []byte) error {
	buf := pgwire.ParsePayload(payload)
	kind, err1 := buf.ReadByte()
	name, err2 := buf.ReadString()
	if err1 != nil || err2 != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Describe message")
	}

	switch kind {
	case 'S':
		stmt, ok := s.state.Statements[name]
		if !ok {
			if err := s.conn.WriteMessage(pgwire.MsgParameterDescription, pgwire.BuildParameterDescription(nil)); err != nil {
				return err
			}
			if err := s.conn.WriteMessage(pgwire.MsgNoData, nil); err != nil {
				return err
			}
			return s.conn.Flush()
		}
		if err := s.conn.WriteMessage(pgwire.MsgParameterDescription, pgwire.BuildParameterDescription(stmt.ParamOIDs)); err != nil {
			return err
		}
		if err := s.describeShape(ctx, stmt.SQL, nil); err != nil {
			return err
		}
		return s.conn.Flush()
	case 'P':
		portal, ok := s.state.Portals[name]
		if !ok {
			if err := s.conn.WriteMessage(pgwire.MsgNoData, nil); err != nil {
				return err
			}
			return s.conn.Flush()
		}
		stmt, ok := s.state.Statements[portal.StatementName]
		if !ok {
			if err := s.conn.WriteMessage(pgwire.MsgNoData, nil); err != nil {
				return err
			}
			return s.conn.Flush()
		}
		sql, err := substitute(stmt.SQL, portal.Params, stmt.ParamOIDs)
		if err != nil {
			if err := s.conn.WriteMessage(pgwire.MsgNoData, nil); err != nil {
				return err
			}
			return s.conn.Flush()
		}
		if err := s.describeShape(ctx, sql, portal.ResultFormats); err != nil {
			return err
		}
		return s.conn.Flush()
	default:
		return s.extendedError(pgerrcode.ProtocolViolation,
			fmt.Sprintf("invalid Describe target %q", kind))
	}
}

// describeShape asks the engine for a statement's output columns and emits
// RowDescription or NoData.
func (s *Session) describeShape(ctx context.Context, sql string, formats []int16) error {
	cols, err := s.eng.Shape(ctx, strings.TrimRight(strings.TrimSpace(sql), ";"), s.defaults())
	if err != nil || len(cols) == 0 {
		return s.conn.WriteMessage(pgwire.MsgNoData, nil)
	}
	return writeRowDescription(s.conn, cols, resolveFormats(formats, len(cols)))
}

// handleExecute substitutes the portal's parameters into its statement and
// runs it. RowDescription is Describe's job; Execute emits only data rows
// and the command tag, and never ReadyForQuery.
func (s *Session) handleExecute(ctx context.Context, payload []byte) error {
	buf := pgwire.ParsePayload(payload)
	portalName, err := buf.ReadString()
	if err != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Execute message")
	}
	// The row-limit field is read and ignored; results are never suspended.
	if _, err := buf.ReadInt32(); err != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Execute message")
	}

	portal, ok := s.state.Portals[portalName]
	if !ok {
		return s.extendedError(pgerrcode.InvalidCursorName,
			fmt.Sprintf("portal %q does not exist", portalName))
	}
	stmt, ok := s.state.Statements[portal.StatementName]
	if !ok {
		return s.extendedError(pgerrcode.InvalidSQLStatementName,
			fmt.Sprintf("prepared statement %q does not exist", portal.StatementName))
	}

	sql, err := substitute(stmt.SQL, portal.Params, stmt.ParamOIDs)
	if err != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, err.Error())
	}
	sql = strings.TrimRight(strings.TrimSpace(sql), ";")

	res, err := s.eng.Execute(ctx, sql, s.defaults())
	if err != nil {
		s.state.InError = true
		if err := s.sendEngineError(err); err != nil {
			return err
		}
		return s.conn.Flush()
	}
	s.trackTransaction(stmt.SQL)

	if res.Columns != nil {
		formats := resolveFormats(portal.ResultFormats, len(res.Columns))
		for _, row := range res.Rows {
			if err := writeDataRow(s.conn, res.Columns, row, formats); err != nil {
				return err
			}
		}
	}
	if err := s.conn.SendCommandComplete(commandTag(stmt.SQL, res)); err != nil {
		return err
	}
	return s.conn.Flush()
}

// handleClose drops a named statement or portal. Closing an unknown name
// still answers CloseComplete.
func (s *Session) handleClose(payload []byte) error {
	buf := pgwire.ParsePayload(payload)
	kind, err1 := buf.ReadByte()
	name, err2 := buf.ReadString()
	if err1 != nil || err2 != nil {
		return s.extendedError(pgerrcode.ProtocolViolation, "malformed Close message")
	}
	switch kind {
	case 'S':
		s.state.CloseStatement(name)
	case 'P':
		s.state.ClosePortal(name)
	default:
		return s.extendedError(pgerrcode.ProtocolViolation,
			fmt.Sprintf("invalid Close target %q", kind))
	}
	return s.conn.WriteMessage(pgwire.MsgCloseComplete, nil)
}

// extendedError reports an extended-protocol failure and arms the skip-
// until-Sync state.
func (s *Session) extendedError(code, msg string) error {
	s.state.InError = true
	if err := s.conn.SendError("ERROR", code, msg); err != nil {
		return err
	}
	return s.conn.Flush()
}

// inferParamOIDs derives parameter types from the statement text: the
// highest $n sets the count, every slot defaults to text, and ::type casts
// directly on a placeholder refine it.
func inferParamOIDs(sql string) []uint32 {
	max := 0
	for _, m := range indexedPlaceholderRe.FindAllStringSubmatch(sql, -1) {
		n, _ := strconv.Atoi(m[1])
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return nil
	}
	oids := make([]uint32, max)
	for i := range oids {
		oids[i] = pgtype.TextOID
	}
	for _, m := range castPlaceholderRe.FindAllStringSubmatch(sql, -1) {
		n, _ := strconv.Atoi(m[1])
		if oid := castOID(m[2]); oid != 0 && n >= 1 && n <= max {
			oids[n-1] = oid
		}
	}
	return oids
}

func castOID(typeName string) uint32 {
	switch strings.ToLower(typeName) {
	case "int", "int4", "integer":
		return pgtype.Int4OID
	case "int2", "smallint":
		return pgtype.Int2OID
	case "int8", "bigint":
		return pgtype.Int8OID
	case "float4", "real":
		return pgtype.Float4OID
	case "float8", "double":
		return pgtype.Float8OID
	case "bool", "boolean":
		return pgtype.BoolOID
	case "text", "varchar":
		return pgtype.TextOID
	case "numeric", "decimal":
		return pgtype.NumericOID
	default:
		return 0
	}
}
