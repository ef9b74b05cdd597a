package rsp

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/stikjit/jitstub/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultAddress is where a debugserver proxy is usually forwarded to
	DefaultAddress = "127.0.0.1:1234"

	// DefaultDialTimeout bounds the TCP connect
	DefaultDialTimeout = 10 * time.Second

	// DefaultMaxAttempts is the retransmit limit for NAKed packets
	DefaultMaxAttempts = 3

	interruptByte = 0x03
	escapeByte    = '}'
	escapeXor     = 0x20

	// wireTraceMax caps packet text in debug logs
	wireTraceMax = 120
)

// DialConfig holds the settings for connecting to a debug stub over TCP.
type DialConfig struct {
	// Address is host:port of the stub (or of a proxy forwarding to it).
	Address string

	// Timeout bounds the TCP connect.
	Timeout time.Duration

	// NoAck negotiates QStartNoAckMode right after connecting.
	NoAck bool

	// MaxAttempts is the retransmit limit while acks are enabled.
	MaxAttempts int
}

// DefaultDialConfig returns a DialConfig with sensible defaults.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		Address:     DefaultAddress,
		Timeout:     DefaultDialTimeout,
		NoAck:       true,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Conn speaks the GDB remote serial protocol over a stream connection:
// "$payload#cs" framing, optional +/- acknowledgements, escape and
// run-length decoding. It implements Channel.
type Conn struct {
	conn net.Conn
	rdr  *bufio.Reader
	addr string

	mu          sync.Mutex // one outstanding command
	ack         bool
	maxAttempts int

	logger  *zap.Logger
	console func(text string)
}

// Dial connects to the stub described by cfg.
func Dial(ctx context.Context, cfg DialConfig, logger *zap.Logger) (*Conn, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, &ConnError{Addr: cfg.Address, Op: "dial", Err: err}
	}

	c := NewConn(nc, logger)
	if cfg.MaxAttempts > 0 {
		c.maxAttempts = cfg.MaxAttempts
	}

	if cfg.NoAck {
		if err := c.DisableAck(); err != nil {
			_ = nc.Close()
			return nil, err
		}
	}

	c.logger.Info("connected to debug stub",
		zap.String("addr", cfg.Address),
		zap.Bool("ack", c.ack),
	)
	return c, nil
}

// NewConn wraps an established connection. Acknowledgements start enabled,
// as the protocol requires.
func NewConn(nc net.Conn, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := "pipe"
	if ra := nc.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Conn{
		conn:        nc,
		rdr:         bufio.NewReader(nc),
		addr:        addr,
		ack:         true,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}
}

// SetConsole registers a callback for inferior console output ("O" packets)
// that arrives while waiting for a reply.
func (c *Conn) SetConsole(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = fn
}

// Send implements Channel.
func (c *Conn) Send(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(command); err != nil {
		return "", err
	}
	return c.recv(command)
}

// DisableAck negotiates QStartNoAckMode. After success neither side sends
// acknowledgements.
func (c *Conn) DisableAck() error {
	reply, err := c.Send(StartNoAckMode())
	if err != nil {
		return err
	}
	if reply != "OK" {
		return &ProtocolError{Command: StartNoAckMode(), Code: reply}
	}

	c.mu.Lock()
	c.ack = false
	c.mu.Unlock()
	return nil
}

// Interrupt sends the out-of-band ^C byte, asking the stub to stop the
// running target. A pending "c" then completes with a stop reply. It does
// not take the command lock, so it may be called while Send is blocked.
func (c *Conn) Interrupt() error {
	if _, err := c.conn.Write([]byte{interruptByte}); err != nil {
		return &ConnError{Addr: c.addr, Op: "write", Err: err}
	}
	c.logger.Debug("rsp interrupt", zap.String("addr", c.addr))
	return nil
}

// Close closes the connection. A blocked Send fails with a *ConnError.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Addr returns the remote address.
func (c *Conn) Addr() string {
	return c.addr
}

func (c *Conn) send(command string) error {
	packet := encodePacket(command)

	for attempt := 1; ; attempt++ {
		c.logger.Debug("rsp send", zap.String("packet", trace(packet)))

		if _, err := c.conn.Write(packet); err != nil {
			return &ConnError{Addr: c.addr, Op: "write", Err: err}
		}
		if !c.ack {
			return nil
		}

		ok, err := c.readAck()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= c.maxAttempts {
			return &ChecksumError{Attempts: attempt, Packet: command}
		}
	}
}

func (c *Conn) recv(command string) (string, error) {
	attempts := 0
	for {
		start, err := c.skipToPacket()
		if err != nil {
			return "", err
		}

		body, err := c.rdr.ReadBytes('#')
		if err != nil {
			return "", &ConnError{Addr: c.addr, Op: "read", Err: err}
		}
		body = body[:len(body)-1]

		var cs [2]byte
		if _, err := io.ReadFull(c.rdr, cs[:]); err != nil {
			return "", &ConnError{Addr: c.addr, Op: "read", Err: err}
		}

		c.logger.Debug("rsp recv", zap.String("packet", trace(append(append([]byte{start}, body...), '#', cs[0], cs[1]))))

		// Notification packets are never acknowledged and we did not ask
		// for any.
		if start == '%' {
			logging.LogRawBytes("rsp notification", body)
			continue
		}
		if needsRawTrace(body) {
			logging.LogRawBytes("rsp encoded frame", body)
		}

		if c.ack {
			if !checksumOK(body, cs) {
				attempts++
				if attempts >= c.maxAttempts {
					_ = c.writeAck('+')
					return "", &ChecksumError{Attempts: attempts, Packet: string(body)}
				}
				if err := c.writeAck('-'); err != nil {
					return "", err
				}
				continue
			}
			if err := c.writeAck('+'); err != nil {
				return "", err
			}
		}

		payload := wireDecode(body)
		if text, ok := consoleOutput(payload); ok {
			if c.console != nil {
				c.console(text)
			}
			continue
		}

		return string(payload), nil
	}
}

// needsRawTrace reports whether a frame body carries escapes, run-length
// markers or bytes that would not survive a plain string trace.
func needsRawTrace(body []byte) bool {
	for _, b := range body {
		if b == '}' || b == '*' || b < 0x20 || b > 0x7e {
			return true
		}
	}
	return false
}

// skipToPacket discards bytes until a packet start ('$' or '%').
func (c *Conn) skipToPacket() (byte, error) {
	for {
		b, err := c.rdr.ReadByte()
		if err != nil {
			return 0, &ConnError{Addr: c.addr, Op: "read", Err: err}
		}
		if b == '$' || b == '%' {
			return b, nil
		}
	}
}

// readAck reads one byte and reports whether it was '+'.
func (c *Conn) readAck() (bool, error) {
	b, err := c.rdr.ReadByte()
	if err != nil {
		return false, &ConnError{Addr: c.addr, Op: "read", Err: err}
	}
	return b == '+', nil
}

func (c *Conn) writeAck(b byte) error {
	if _, err := c.conn.Write([]byte{b}); err != nil {
		return &ConnError{Addr: c.addr, Op: "write", Err: err}
	}
	return nil
}

// encodePacket frames payload as "$<escaped>#<checksum>".
func encodePacket(payload string) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, '$')
	for i := 0; i < len(payload); i++ {
		switch ch := payload[i]; ch {
		case '$', '#', escapeByte, '*':
			out = append(out, escapeByte, ch^escapeXor)
		default:
			out = append(out, ch)
		}
	}
	sum := checksum(out[1:])
	return append(out, '#', hexDigits[sum>>4], hexDigits[sum&0xf])
}

// wireDecode undoes '}' escaping and '*' run-length encoding.
func wireDecode(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		switch ch := in[i]; ch {
		case escapeByte:
			if i+1 < len(in) {
				i++
				out = append(out, in[i]^escapeXor)
			}
		case '*':
			if i+1 >= len(in) {
				break
			}
			i++
			if len(out) == 0 {
				continue
			}
			last := out[len(out)-1]
			for n := int(in[i]) - 29; n > 0; n-- {
				out = append(out, last)
			}
		default:
			out = append(out, ch)
		}
	}
	return out
}

// consoleOutput recognises "O<hex>" inferior output packets.
func consoleOutput(payload []byte) (string, bool) {
	if len(payload) < 3 || payload[0] != 'O' || (len(payload)-1)%2 != 0 {
		return "", false
	}
	text, err := hex.DecodeString(string(payload[1:]))
	if err != nil {
		return "", false
	}
	return string(text), true
}

var hexDigits = []byte("0123456789abcdef")

func checksum(b []byte) uint8 {
	var sum uint8
	for _, c := range b {
		sum += c
	}
	return sum
}

func checksumOK(body []byte, cs [2]byte) bool {
	var want uint8
	if _, err := fmt.Sscanf(string(cs[:]), "%02x", &want); err != nil {
		return false
	}
	return checksum(body) == want
}

func trace(packet []byte) string {
	if len(packet) > wireTraceMax {
		return string(packet[:wireTraceMax]) + "..."
	}
	return string(packet)
}
