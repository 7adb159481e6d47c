package pgwire

import "github.com/euanmacinnes/clarium-sub003/internal/auth"

// PreparedStatement is a named statement registered by Parse. ParamOIDs
// holds one entry per placeholder, declared by the client or inferred from
// the statement text.
type PreparedStatement struct {
	Name      string
	SQL       string
	ParamOIDs []uint32
}

// Portal is a bound statement awaiting Execute. Params are text values
// ready for substitution; nil is SQL NULL.
type Portal struct {
	Name          string
	StatementName string
	Params        []*string
	ResultFormats []int16
}

// ConnState is the per-connection session state. It is owned by a single
// connection goroutine and never shared.
type ConnState struct {
	User      string
	Database  string
	Schema    string
	Params    map[string]string
	Principal *auth.Principal
	Token     string

	Statements map[string]*PreparedStatement
	Portals    map[string]*Portal

	// InTx tracks an open transaction; InError marks a failed extended
	// batch or failed transaction until Sync or ROLLBACK clears it.
	InTx    bool
	InError bool
}

// TxStatus returns the ReadyForQuery status byte for the current state.
func (s *ConnState) TxStatus() byte {
	switch {
	case s.InError:
		return TxStatusFailed
	case s.InTx:
		return TxStatusInTx
	default:
		return TxStatusIdle
	}
}

// CloseStatement removes a named statement. Closing an unknown name is not
// an error.
func (s *ConnState) CloseStatement(name string) {
	delete(s.Statements, name)
}

// ClosePortal removes a named portal. Closing an unknown name is not an
// error.
func (s *ConnState) ClosePortal(name string) {
	delete(s.Portals, name)
}
