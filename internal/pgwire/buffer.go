package pgwire

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrMessageTooLarge = errors.New("message too large")
)

// MaxMessageSize bounds a single frame body. Nothing this front end
// handles legitimately approaches it.
const MaxMessageSize = 64 << 20

// Buffer assembles and picks apart message payloads. All multi-byte
// integers are big-endian per the protocol.
type Buffer struct {
	buf []byte
	pos int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

func (b *Buffer) Bytes() []byte { return b.buf }
func (b *Buffer) Len() int      { return len(b.buf) }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.buf) - b.pos }

// WriteByte appends a single byte. The error is always nil; the signature
// satisfies io.ByteWriter.
func (b *Buffer) WriteByte(v byte) error {
	b.buf = append(b.buf, v)
	return nil
}

func (b *Buffer) WriteInt16(v int16) {
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(v))
}

func (b *Buffer) WriteUint16(v uint16) {
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
}

func (b *Buffer) WriteInt32(v int32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(v))
}

func (b *Buffer) WriteUint32(v uint32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
}

func (b *Buffer) WriteInt64(v int64) {
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v))
}

func (b *Buffer) WriteBytes(v []byte) {
	b.buf = append(b.buf, v...)
}

// WriteString appends s with a NUL terminator.
func (b *Buffer) WriteString(s string) {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) ReadUint16() (uint16, error) {
	if b.pos+2 > len(b.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint16(b.buf[b.pos:])
	b.pos += 2
	return v, nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) ReadUint32() (uint32, error) {
	if b.pos+4 > len(b.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(b.buf[b.pos:])
	b.pos += 4
	return v, nil
}

func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if n < 0 || b.pos+n > len(b.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	v := b.buf[b.pos : b.pos+n]
	b.pos += n
	return v, nil
}

// ReadString reads up to the next NUL terminator.
func (b *Buffer) ReadString() (string, error) {
	for i := b.pos; i < len(b.buf); i++ {
		if b.buf[i] == 0 {
			s := string(b.buf[b.pos:i])
			b.pos = i + 1
			return s, nil
		}
	}
	return "", io.ErrUnexpectedEOF
}

// ParsePayload wraps an incoming payload for reading without copying.
func ParsePayload(payload []byte) *Buffer {
	return &Buffer{buf: payload}
}

// ReadMessage reads one tagged frame: tag byte, int32 length including
// itself, body. It returns the tag and body.
func ReadMessage(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	tag := header[0]
	length := int(binary.BigEndian.Uint32(header[1:])) - 4
	if length < 0 || length > MaxMessageSize {
		return tag, nil, ErrMessageTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return tag, nil, err
	}
	return tag, payload, nil
}

// ReadStartupMessage reads the untagged startup frame: int32 length
// including itself, then the body.
func ReadStartupMessage(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint32(header[:])) - 4
	if length < 0 || length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteMessage writes one tagged frame.
func WriteMessage(w io.Writer, tag byte, payload []byte) error {
	var header [5]byte
	header[0] = tag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)+4))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ParseStartupMessage splits a startup body into the protocol version and
// the key/value parameter pairs.
func ParseStartupMessage(payload []byte) (int32, map[string]string, error) {
	if len(payload) < 4 {
		return 0, nil, ErrInvalidMessage
	}
	version := int32(binary.BigEndian.Uint32(payload[:4]))
	params := make(map[string]string)
	buf := ParsePayload(payload[4:])
	for buf.Remaining() > 1 {
		key, err := buf.ReadString()
		if err != nil || key == "" {
			break
		}
		value, err := buf.ReadString()
		if err != nil {
			break
		}
		params[key] = value
	}
	return version, params, nil
}

// Payload builders for fixed-shape backend messages.

func BuildErrorResponse(severity, code, message string) []byte {
	buf := NewBuffer(64 + len(message))
	_ = buf.WriteByte(FieldSeverity)
	buf.WriteString(severity)
	_ = buf.WriteByte(FieldCode)
	buf.WriteString(code)
	_ = buf.WriteByte(FieldMessage)
	buf.WriteString(message)
	_ = buf.WriteByte(0)
	return buf.Bytes()
}

func BuildReadyForQuery(txStatus byte) []byte {
	return []byte{txStatus}
}

func BuildParameterStatus(name, value string) []byte {
	buf := NewBuffer(len(name) + len(value) + 2)
	buf.WriteString(name)
	buf.WriteString(value)
	return buf.Bytes()
}

func BuildAuthentication(subcode int32) []byte {
	buf := NewBuffer(4)
	buf.WriteInt32(subcode)
	return buf.Bytes()
}

func BuildBackendKeyData(pid, secretKey int32) []byte {
	buf := NewBuffer(8)
	buf.WriteInt32(pid)
	buf.WriteInt32(secretKey)
	return buf.Bytes()
}

func BuildCommandComplete(tag string) []byte {
	buf := NewBuffer(len(tag) + 1)
	buf.WriteString(tag)
	return buf.Bytes()
}

func BuildParameterDescription(oids []uint32) []byte {
	buf := NewBuffer(2 + 4*len(oids))
	buf.WriteInt16(int16(len(oids)))
	for _, oid := range oids {
		buf.WriteUint32(oid)
	}
	return buf.Bytes()
}
