package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgerrcode"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
	"github.com/euanmacinnes/clarium-sub003/internal/pgwire"
	"github.com/euanmacinnes/clarium-sub003/pkg/logger"
)

// Session runs the post-handshake message loop for one connection. All
// state is confined to the owning goroutine; the engine is the only shared
// collaborator.
type Session struct {
	conn  *pgwire.Conn
	eng   engine.Engine
	state *pgwire.ConnState
	log   *log.Logger
}

func New(conn *pgwire.Conn, eng engine.Engine, state *pgwire.ConnState) *Session {
	return &Session{
		conn:  conn,
		eng:   eng,
		state: state,
		log:   logger.With("conn", conn.ID(), "user", state.User),
	}
}

// Run reads and dispatches frames until Terminate, client disconnect, or an
// I/O failure. Protocol and engine errors are reported on the wire and do
// not end the loop.
func (s *Session) Run(ctx context.Context) error {
	defer s.logExit()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tag, payload, err := s.conn.ReadMessage()
		if err != nil {
			if tag == 0 || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		if tag == 0 {
			// A zero tag is not a real frame; the client hung up or lost
			// framing. Drop the connection rather than answer garbage.
			return nil
		}
		if err := s.dispatch(ctx, tag, payload); err != nil {
			if errors.Is(err, errTerminate) {
				return nil
			}
			return err
		}
	}
}

var errTerminate = errors.New("client terminated")

func (s *Session) dispatch(ctx context.Context, tag byte, payload []byte) error {
	// After an extended-protocol failure the client's already-pipelined
	// messages are discarded until Sync.
	if s.state.InError && skippableInError(tag) {
		return nil
	}
	switch tag {
	case pgwire.MsgQuery:
		return s.handleQuery(ctx, payload)
	case pgwire.MsgParse:
		return s.handleParse(payload)
	case pgwire.MsgBind:
		return s.handleBind(payload)
	case pgwire.MsgDescribe:
		return s.handleDescribe(ctx, payload)
	case pgwire.MsgExecute:
		return s.handleExecute(ctx, payload)
	case pgwire.MsgClose:
		return s.handleClose(payload)
	case pgwire.MsgSync:
		return s.handleSync()
	case pgwire.MsgFlush:
		return s.conn.Flush()
	case pgwire.MsgTerminate:
		return errTerminate
	default:
		s.conn.LogUnknownFrame(tag, payload)
		s.state.InError = true
		if err := s.conn.SendError("ERROR", pgerrcode.ProtocolViolation,
			fmt.Sprintf("unknown message type %q", tag)); err != nil {
			return err
		}
		return s.conn.Flush()
	}
}

func skippableInError(tag byte) bool {
	switch tag {
	case pgwire.MsgParse, pgwire.MsgBind, pgwire.MsgDescribe, pgwire.MsgExecute, pgwire.MsgClose:
		return true
	}
	return false
}

// handleSync ends an extended batch. Outside a transaction it clears the
// error flag; inside one, the flag stands until COMMIT or ROLLBACK.
func (s *Session) handleSync() error {
	if !s.state.InTx {
		s.state.InError = false
	}
	return s.conn.SendReadyForQuery(s.state.TxStatus())
}

func (s *Session) defaults() engine.Defaults {
	return engine.Defaults{Database: s.state.Database, Schema: s.state.Schema}
}

// trackTransaction updates transaction state after a successful statement.
func (s *Session) trackTransaction(sql string) {
	switch {
	case isBegin(sql):
		s.state.InTx = true
	case isCommit(sql), isRollback(sql):
		s.state.InTx = false
		s.state.InError = false
	}
}

// sendEngineError maps an engine failure onto an ErrorResponse, keeping the
// engine's SQLSTATE and severity when it supplied them.
func (s *Session) sendEngineError(err error) error {
	severity, code, msg := "ERROR", pgerrcode.InternalError, err.Error()
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		if engErr.Severity != "" {
			severity = engErr.Severity
		}
		if engErr.Code != "" {
			code = engErr.Code
		}
		msg = engErr.Message
	}
	return s.conn.SendError(severity, code, msg)
}

func (s *Session) logExit() {
	s.log.Debug("session closed",
		"database", s.state.Database,
		"schema", s.state.Schema,
		"statements", len(s.state.Statements),
		"portals", len(s.state.Portals),
		"in_tx", s.state.InTx,
		"in_error", s.state.InError)
}
