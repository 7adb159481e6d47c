package session

import (
	"context"
	"strings"

	"github.com/jackc/pgerrcode"

	"github.com/euanmacinnes/clarium-sub003/internal/engine"
	"github.com/euanmacinnes/clarium-sub003/internal/pgwire"
)

// handleQuery runs the simple query cycle: split the buffer into
// statements, run each, answer every one individually, and finish with a
// single ReadyForQuery. A failing statement does not stop the batch.
//
// Splitting is a plain cut on semicolons; semicolons inside string
// literals are not honored in the simple path. Clients with such
// statements use the extended protocol.
func (s *Session) handleQuery(ctx context.Context, payload []byte) error {
	sql := strings.TrimSuffix(string(payload), "\x00")

	ran := false
	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		ran = true
		if err := s.runStatement(ctx, stmt); err != nil {
			return err
		}
	}
	if !ran {
		if err := s.conn.WriteMessage(pgwire.MsgEmptyQueryResponse, nil); err != nil {
			return err
		}
	}
	return s.conn.SendReadyForQuery(s.state.TxStatus())
}

// runStatement executes one statement on the simple path. Engine errors are
// reported inline; inside a transaction they also fail the transaction.
func (s *Session) runStatement(ctx context.Context, stmt string) error {
	if s.state.InTx && s.state.InError && !isCommit(stmt) && !isRollback(stmt) {
		return s.conn.SendError("ERROR", pgerrcode.InFailedSQLTransaction,
			"current transaction is aborted, commands ignored until end of transaction block")
	}

	if isCurrentUserQuery(stmt) {
		return s.sendCurrentUser()
	}

	res, err := s.eng.Execute(ctx, stmt, s.defaults())
	if err != nil {
		if s.state.InTx {
			s.state.InError = true
		}
		return s.sendEngineError(err)
	}
	s.trackTransaction(stmt)

	if isRowReturning(stmt) {
		if err := writeRowDescription(s.conn, res.Columns, nil); err != nil {
			return err
		}
		for _, row := range res.Rows {
			if err := writeDataRow(s.conn, res.Columns, row, nil); err != nil {
				return err
			}
		}
	}
	return s.conn.SendCommandComplete(commandTag(stmt, res))
}

// isCurrentUserQuery spots the identity probes clients issue right after
// connecting; these are answered from session state without the engine.
func isCurrentUserQuery(stmt string) bool {
	up := strings.ToUpper(strings.TrimSpace(stmt))
	return up == "SELECT CURRENT_USER" || up == "SHOW CURRENT_USER"
}

func (s *Session) sendCurrentUser() error {
	cols := []engine.Column{{Name: "current_user", Kind: engine.KindString}}
	if err := writeRowDescription(s.conn, cols, nil); err != nil {
		return err
	}
	if err := writeDataRow(s.conn, cols, []any{s.state.User}, nil); err != nil {
		return err
	}
	return s.conn.SendCommandComplete("SELECT 1")
}
