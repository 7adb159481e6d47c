package pgwire

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgerrcode"

	"github.com/euanmacinnes/clarium-sub003/internal/auth"
	"github.com/euanmacinnes/clarium-sub003/pkg/logger"
)

var (
	ErrInvalidStartup       = errors.New("invalid startup message")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrCancelRequest reports a CancelRequest startup frame. The caller
	// closes the connection without answering; query cancellation itself
	// is not supported.
	ErrCancelRequest = errors.New("cancel request")
)

// ConnID is a unique connection identifier.
type ConnID uint64

var connIDCounter uint64

func nextConnID() ConnID {
	return ConnID(atomic.AddUint64(&connIDCounter, 1))
}

// Conn wraps one client socket. Reads are unbuffered frame reads; writes
// accumulate in a bufio.Writer until Flush, so the session layer controls
// response batching.
type Conn struct {
	id        ConnID
	raw       net.Conn
	r         *bufio.Reader
	w         *bufio.Writer
	pid       int32
	secretKey int32
	trace     bool

	mu     sync.Mutex
	closed bool
}

// HandshakeConfig carries the server-side knobs the handshake needs.
type HandshakeConfig struct {
	// Trust skips the password exchange entirely.
	Trust bool
	// Auth verifies credentials when Trust is off.
	Auth auth.Provider
	// DefaultDatabase and DefaultSchema seed the session when the client
	// does not name a database.
	DefaultDatabase string
	DefaultSchema   string
}

func NewConn(raw net.Conn, trace bool) *Conn {
	var pid, key [4]byte
	_, _ = rand.Read(pid[:])
	_, _ = rand.Read(key[:])
	return &Conn{
		id:        nextConnID(),
		raw:       raw,
		r:         bufio.NewReader(raw),
		w:         bufio.NewWriter(raw),
		pid:       int32(binary.BigEndian.Uint32(pid[:]) & 0x7FFFFFFF),
		secretKey: int32(binary.BigEndian.Uint32(key[:]) & 0x7FFFFFFF),
		trace:     trace,
	}
}

func (c *Conn) ID() ConnID { return c.id }

func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.raw.Close()
}

// Handshake runs the startup sequence and returns the initialized session
// state. On failure the caller closes the connection; any ErrorResponse owed
// to the client has already been written.
func (c *Conn) Handshake(ctx context.Context, cfg HandshakeConfig) (*ConnState, error) {
	version, params, err := c.readStartup()
	if err != nil {
		return nil, err
	}
	if version != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported protocol version %d", ErrInvalidStartup, version)
	}

	user := params["user"]
	database := params["database"]
	if database == "" {
		database = params["dbname"]
	}
	if database == "" {
		database = cfg.DefaultDatabase
	}
	state := &ConnState{
		User:       user,
		Database:   database,
		Schema:     cfg.DefaultSchema,
		Params:     params,
		Statements: make(map[string]*PreparedStatement),
		Portals:    make(map[string]*Portal),
	}

	if !cfg.Trust {
		if err := c.authenticate(ctx, cfg.Auth, state); err != nil {
			return nil, err
		}
	}

	if err := c.sendPostAuthMessages(state); err != nil {
		return nil, err
	}
	return state, c.Flush()
}

// readStartup reads startup frames, declining SSL and GSS encryption
// requests with a single 'N' until a real StartupMessage arrives.
func (c *Conn) readStartup() (int32, map[string]string, error) {
	for {
		payload, err := ReadStartupMessage(c.r)
		if err != nil {
			return 0, nil, fmt.Errorf("reading startup: %w", err)
		}
		if c.trace {
			logger.Debug("startup frame", "conn", c.id, "bytes", hexPrefix(payload, 32))
		}
		version, params, err := ParseStartupMessage(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("parsing startup: %w", err)
		}
		switch version {
		case SSLRequestCode, GSSENCRequestCode:
			if _, err := c.raw.Write([]byte{'N'}); err != nil {
				return 0, nil, err
			}
		case CancelRequestCode:
			return 0, nil, ErrCancelRequest
		default:
			return version, params, nil
		}
	}
}

// authenticate requests a cleartext password and verifies it against the
// provider. The wire offers no stronger method; deployments that need one
// front the listener with TLS termination.
func (c *Conn) authenticate(ctx context.Context, provider auth.Provider, state *ConnState) error {
	if err := c.WriteMessage(MsgAuthentication, BuildAuthentication(AuthCleartextPassword)); err != nil {
		return err
	}
	if err := c.Flush(); err != nil {
		return err
	}

	tag, payload, err := ReadMessage(c.r)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if tag != MsgPassword {
		return fmt.Errorf("%w: expected password message, got %c", ErrInvalidStartup, tag)
	}
	password := strings.TrimSuffix(string(payload), "\x00")

	clientIP := ""
	if addr, ok := c.raw.RemoteAddr().(*net.TCPAddr); ok {
		clientIP = addr.IP.String()
	}
	principal, token, err := provider.Login(ctx, state.User, password, clientIP)
	if err != nil {
		_ = c.SendError("FATAL", pgerrcode.InvalidPassword,
			fmt.Sprintf("password authentication failed for user %q", state.User))
		_ = c.Flush()
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	state.Principal = principal
	state.Token = token
	return nil
}

// sendPostAuthMessages completes the handshake: AuthenticationOk, the
// ParameterStatus set, BackendKeyData, ReadyForQuery.
func (c *Conn) sendPostAuthMessages(state *ConnState) error {
	if err := c.WriteMessage(MsgAuthentication, BuildAuthentication(AuthOK)); err != nil {
		return err
	}
	for _, kv := range serverParams(state) {
		if err := c.WriteMessage(MsgParameterStatus, BuildParameterStatus(kv[0], kv[1])); err != nil {
			return err
		}
	}
	if err := c.WriteMessage(MsgBackendKeyData, BuildBackendKeyData(c.pid, c.secretKey)); err != nil {
		return err
	}
	return c.WriteMessage(MsgReadyForQuery, BuildReadyForQuery(TxStatusIdle))
}

// serverParams is the advertised parameter set. Values are fixed except for
// search_path, session_authorization and application_name, which reflect
// the session.
func serverParams(state *ConnState) [][2]string {
	params := [][2]string{
		{"server_version", "14.0"},
		{"server_version_num", "140000"},
		{"server_encoding", "UTF8"},
		{"client_encoding", "UTF8"},
		{"DateStyle", "ISO, MDY"},
		{"integer_datetimes", "on"},
		{"standard_conforming_strings", "on"},
		{"TimeZone", "UTC"},
		{"default_transaction_read_only", "off"},
		{"is_superuser", "off"},
		{"search_path", fmt.Sprintf("\"$user\", %s", state.Schema)},
		{"session_authorization", state.User},
	}
	if app := state.Params["application_name"]; app != "" {
		params = append(params, [2]string{"application_name", app})
	}
	return params
}

// ReadMessage reads the next tagged frame from the client.
func (c *Conn) ReadMessage() (byte, []byte, error) {
	tag, payload, err := ReadMessage(c.r)
	if err == nil && c.trace {
		logger.Debug("recv frame", "conn", c.id, "tag", string(tag), "len", len(payload))
	}
	return tag, payload, err
}

// WriteMessage buffers one tagged frame; call Flush to push it out.
func (c *Conn) WriteMessage(tag byte, payload []byte) error {
	return WriteMessage(c.w, tag, payload)
}

func (c *Conn) Flush() error {
	return c.w.Flush()
}

// LogUnknownFrame hex-dumps a frame that matched no dispatch case, at
// debug level when tracing is on.
func (c *Conn) LogUnknownFrame(tag byte, payload []byte) {
	if !c.trace {
		return
	}
	logger.Debug("unknown frame", "conn", c.id, "tag", string(tag), "bytes", hexPrefix(payload, 64))
}

func (c *Conn) SendError(severity, code, message string) error {
	return c.WriteMessage(MsgErrorResponse, BuildErrorResponse(severity, code, message))
}

func (c *Conn) SendReadyForQuery(txStatus byte) error {
	if err := c.WriteMessage(MsgReadyForQuery, BuildReadyForQuery(txStatus)); err != nil {
		return err
	}
	return c.Flush()
}

func (c *Conn) SendCommandComplete(tag string) error {
	return c.WriteMessage(MsgCommandComplete, BuildCommandComplete(tag))
}

func hexPrefix(data []byte, max int) string {
	if len(data) > max {
		return hex.EncodeToString(data[:max]) + "..."
	}
	return hex.EncodeToString(data)
}
