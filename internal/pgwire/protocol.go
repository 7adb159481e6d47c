// Package pgwire implements the PostgreSQL v3 wire framing and the
// connection handshake for the Clarium front end.
package pgwire

// Protocol version and the special request codes that arrive in place of a
// StartupMessage. SSL and GSS encryption requests are refused with a single
// 'N' byte; a cancel request closes the connection without effect.
const (
	ProtocolVersion   = 196608 // 3.0 = (3 << 16) | 0
	SSLRequestCode    = 80877103
	GSSENCRequestCode = 80877104
	CancelRequestCode = 80877102
)

// Frontend (client -> server) message tags.
const (
	MsgQuery     byte = 'Q'
	MsgParse     byte = 'P'
	MsgBind      byte = 'B'
	MsgDescribe  byte = 'D'
	MsgExecute   byte = 'E'
	MsgClose     byte = 'C'
	MsgSync      byte = 'S'
	MsgFlush     byte = 'H'
	MsgTerminate byte = 'X'
	MsgPassword  byte = 'p'
)

// Backend (server -> client) message tags.
const (
	MsgAuthentication       byte = 'R'
	MsgParameterStatus      byte = 'S'
	MsgBackendKeyData       byte = 'K'
	MsgReadyForQuery        byte = 'Z'
	MsgRowDescription       byte = 'T'
	MsgDataRow              byte = 'D'
	MsgCommandComplete      byte = 'C'
	MsgEmptyQueryResponse   byte = 'I'
	MsgErrorResponse        byte = 'E'
	MsgNoticeResponse       byte = 'N'
	MsgParseComplete        byte = '1'
	MsgBindComplete         byte = '2'
	MsgCloseComplete        byte = '3'
	MsgNoData               byte = 'n'
	MsgParameterDescription byte = 't'
	MsgPortalSuspended      byte = 's'
)

// Authentication subcodes carried in 'R' messages.
const (
	AuthOK                = 0
	AuthCleartextPassword = 3
)

// Transaction status bytes carried in ReadyForQuery.
const (
	TxStatusIdle   byte = 'I'
	TxStatusInTx   byte = 'T'
	TxStatusFailed byte = 'E'
)

// ErrorResponse field tags.
const (
	FieldSeverity byte = 'S'
	FieldCode     byte = 'C'
	FieldMessage  byte = 'M'
)
