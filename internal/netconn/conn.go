// Package netconn implements the length-prefixed framed TCP transport used
// between peers, adapted from the teacher's raw byte-oriented conn into a
// typed Kind+payload envelope so callers never hand-roll field ordering.
package netconn

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/duskchain/fullnode/internal/wireproto"
)

const defaultTimeout = 30 * time.Second

// Envelope is one framed wire message.
type Envelope struct {
	Kind    wireproto.Kind
	Payload json.RawMessage
}

// Conn is a single peer-to-peer connection with framing and handshake.
type Conn struct {
	tc             *net.TCPConn
	peerID         string
	weAreInitiator bool
	err            error
}

// HandshakeParams configures the initial identity exchange.
type HandshakeParams struct {
	RuntimeID      string
	WeAreInitiator bool
}

// NewConn wraps an established TCP connection and performs the handshake.
func NewConn(params HandshakeParams, tcpConn *net.TCPConn) *Conn {
	c := &Conn{tc: tcpConn, weAreInitiator: params.WeAreInitiator}
	c.handshake(params)
	return c
}

// Dial resolves and connects to addr, then performs the handshake.
func Dial(params HandshakeParams, addr string) (*Conn, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	tcpConn, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, err
	}
	params.WeAreInitiator = true
	return NewConn(params, tcpConn), nil
}

func (c *Conn) handshake(params HandshakeParams) {
	c.writeString("duskchain/fullnode")
	c.writeString("v1")
	c.writeString(params.RuntimeID)
	c.readStringExpected("duskchain/fullnode")
	c.readStringExpected("v1")
	peerID := c.readString()
	if c.err != nil {
		return
	}
	if peerID == params.RuntimeID {
		c.err = fmt.Errorf("will not connect to self")
		c.Close()
		return
	}
	c.peerID = peerID
}

// PeerID returns the remote runtime id learned during handshake.
func (c *Conn) PeerID() string { return c.peerID }

// WeAreInitiator reports whether this side dialed the connection.
func (c *Conn) WeAreInitiator() bool { return c.weAreInitiator }

// LocalAddr returns our address as seen by the OS for this socket.
func (c *Conn) LocalAddr() *net.TCPAddr {
	return c.tc.LocalAddr().(*net.TCPAddr)
}

// RemoteAddr returns the peer's address as seen by the OS for this socket.
func (c *Conn) RemoteAddr() *net.TCPAddr {
	return c.tc.RemoteAddr().(*net.TCPAddr)
}

func (c *Conn) readRaw(numBytes uint32, timeout time.Duration) []byte {
	if c.err != nil {
		return nil
	}
	c.tc.SetReadDeadline(time.Now().Add(timeout))
	defer c.tc.SetReadDeadline(time.Time{})
	data := make([]byte, numBytes)
	if _, err := readFull(c.tc, data); err != nil {
		c.err = err
		return nil
	}
	return data
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *Conn) writeRaw(data []byte, timeout time.Duration) {
	if c.err != nil {
		return
	}
	c.tc.SetWriteDeadline(time.Now().Add(timeout))
	defer c.tc.SetWriteDeadline(time.Time{})
	if _, err := c.tc.Write(data); err != nil {
		c.err = err
	}
}

// ReadTimeout reads one variable-length frame within timeout.
func (c *Conn) ReadTimeout(timeout time.Duration) []byte {
	sizeB := c.readRaw(4, timeout)
	if c.err != nil {
		return nil
	}
	size := binary.BigEndian.Uint32(sizeB)
	return c.readRaw(size, defaultTimeout)
}

// Read reads one variable-length frame with the default timeout.
func (c *Conn) Read() []byte {
	return c.ReadTimeout(defaultTimeout)
}

// Write writes one variable-length frame.
func (c *Conn) Write(data []byte) {
	if c.err != nil {
		return
	}
	sizeB := make([]byte, 4)
	binary.BigEndian.PutUint32(sizeB, uint32(len(data)))
	c.writeRaw(sizeB, defaultTimeout)
	c.writeRaw(data, defaultTimeout)
}

func (c *Conn) writeString(s string) { c.Write([]byte(s)) }

func (c *Conn) readString() string {
	raw := c.Read()
	if c.err != nil {
		return ""
	}
	return string(raw)
}

func (c *Conn) readStringExpected(expected string) {
	actual := c.readString()
	if c.err != nil {
		return
	}
	if actual != expected {
		c.err = fmt.Errorf("received unexpected handshake string: %s != %s", actual, expected)
	}
}

// DecodeEnvelope decodes a raw frame previously read with ReadTimeout/Read.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Unmarshal decodes the envelope's payload into v.
func (e Envelope) Unmarshal(v any) error {
	if e.Payload == nil {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ReadEnvelope reads and decodes one message.
func (c *Conn) ReadEnvelope() (Envelope, error) {
	raw := c.Read()
	if c.err != nil {
		return Envelope{}, c.Err()
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// WriteEnvelope encodes and writes one message.
func (c *Conn) WriteEnvelope(kind wireproto.Kind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{Kind: kind, Payload: raw})
	if err != nil {
		return err
	}
	c.Write(data)
	return c.Err()
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.tc.Close()
}

// CloseIfPossible attempts a graceful Bye then closes, ignoring failures.
func (c *Conn) CloseIfPossible(reason wireproto.ByeReason) {
	go func() {
		defer func() { recover() }()
		_ = c.WriteEnvelope(wireproto.KindBye, reason)
		c.Close()
	}()
}

func (c *Conn) HasErr() bool { return c.err != nil }

// Err pops and clears the stored error.
func (c *Conn) Err() error {
	defer func() { c.err = nil }()
	return c.err
}

// TimeoutErrOrPanic pops the stored error, panicking unless it's a timeout.
func (c *Conn) TimeoutErrOrPanic() error {
	err := c.Err()
	if err != nil && !os.IsTimeout(err) {
		panic(err)
	}
	return err
}
