package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euanmacinnes/clarium-sub003/internal/auth"
	"github.com/euanmacinnes/clarium-sub003/internal/engine"
	"github.com/euanmacinnes/clarium-sub003/internal/engine/enginetest"
)

// startServer binds to an ephemeral port and tears the server down with the
// test. The returned address is ready for client connections.
func startServer(t *testing.T, eng engine.Engine, trust bool, authp auth.Provider) string {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Trust = trust
	srv := New(cfg, eng, authp)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv.Addr().String()
}

func connect(t *testing.T, url string) *pgconn.PgConn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := pgconn.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}

func TestServerSimpleQuery(t *testing.T) {
	eng := enginetest.New()
	eng.Script("SELECT 1 AS v", enginetest.Script{
		Result: &engine.Result{
			Columns: []engine.Column{{Name: "v", Kind: engine.KindInt32}},
			Rows:    [][]any{{int32(1)}},
		},
	})
	addr := startServer(t, eng, true, nil)

	conn := connect(t, fmt.Sprintf("postgres://tester@%s/clarium?sslmode=disable", addr))

	results, err := conn.Exec(context.Background(), "SELECT 1 AS v").ReadAll()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "SELECT 1", results[0].CommandTag.String())
	require.Len(t, results[0].Rows, 1)
	assert.Equal(t, "1", string(results[0].Rows[0][0]))
	require.Len(t, results[0].FieldDescriptions, 1)
	assert.Equal(t, "v", results[0].FieldDescriptions[0].Name)
	assert.Equal(t, uint32(23), results[0].FieldDescriptions[0].DataTypeOID)
}

func TestServerExtendedQueryBinaryParam(t *testing.T) {
	eng := enginetest.New()
	eng.Script("SELECT 42::int4 AS a", enginetest.Script{
		Result: &engine.Result{
			Columns: []engine.Column{{Name: "a", Kind: engine.KindInt32}},
			Rows:    [][]any{{int32(42)}},
		},
	})
	addr := startServer(t, eng, true, nil)

	conn := connect(t, fmt.Sprintf("postgres://tester@%s/clarium?sslmode=disable", addr))

	param := make([]byte, 4)
	binary.BigEndian.PutUint32(param, 42)

	res := conn.ExecParams(context.Background(), "SELECT $1::int4 AS a",
		[][]byte{param}, nil, []int16{1}, nil).Read()
	require.NoError(t, res.Err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "42", string(res.Rows[0][0]))

	executed := eng.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, "SELECT 42::int4 AS a", executed[0])
}

func TestServerCommandStatement(t *testing.T) {
	eng := enginetest.New()
	addr := startServer(t, eng, true, nil)

	conn := connect(t, fmt.Sprintf("postgres://tester@%s/clarium?sslmode=disable", addr))

	results, err := conn.Exec(context.Background(), "CREATE TABLE t (a int)").ReadAll()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "CREATE TABLE", results[0].CommandTag.String())
}

func TestServerStopClosesIdleClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Trust = true
	srv := New(cfg, enginetest.New(), nil)
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := pgconn.Connect(ctx,
		fmt.Sprintf("postgres://tester@%s/clarium?sslmode=disable", srv.Addr().String()))
	require.NoError(t, err)
	defer func() { _ = conn.Close(context.Background()) }()

	// The client sits idle; Stop must not wait on its next message.
	done := make(chan error, 1)
	go func() { done <- srv.Stop() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop hung with one idle connected client")
	}
}

func TestServerPasswordAuth(t *testing.T) {
	provider := &auth.StaticProvider{Users: map[string]string{"alice": "s3cret"}}
	addr := startServer(t, enginetest.New(), false, provider)

	conn := connect(t, fmt.Sprintf("postgres://alice:s3cret@%s/clarium?sslmode=disable", addr))

	results, err := conn.Exec(context.Background(), "SELECT CURRENT_USER").ReadAll()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Rows, 1)
	assert.Equal(t, "alice", string(results[0].Rows[0][0]))
}

func TestServerRejectsBadPassword(t *testing.T) {
	provider := &auth.StaticProvider{Users: map[string]string{"alice": "s3cret"}}
	addr := startServer(t, enginetest.New(), false, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := pgconn.Connect(ctx,
		fmt.Sprintf("postgres://alice:wrong@%s/clarium?sslmode=disable", addr))
	require.Error(t, err)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "28P01", pgErr.Code)
}

func TestServerEngineErrorSurfacesAsPgError(t *testing.T) {
	eng := enginetest.New()
	eng.Script("SELECT missing", enginetest.Script{
		Err: &engine.Error{Code: "42P01", Severity: "ERROR", Message: `relation "missing" does not exist`},
	})
	addr := startServer(t, eng, true, nil)

	conn := connect(t, fmt.Sprintf("postgres://tester@%s/clarium?sslmode=disable", addr))

	_, err := conn.Exec(context.Background(), "SELECT missing").ReadAll()
	require.Error(t, err)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "42P01", pgErr.Code)
	assert.Contains(t, pgErr.Message, "missing")
}
