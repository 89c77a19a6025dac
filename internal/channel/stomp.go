package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// subscriptionID is the only subscription a connection holds.
const subscriptionID = "sub-0"

// heartbeatPayload is a STOMP heart-beat: a bare end-of-line.
var heartbeatPayload = []byte("\n")

// WebSocketDialer dials a STOMP 1.2 broker over a WebSocket, one frame per
// WebSocket message.
type WebSocketDialer struct {
	// URL is the broker endpoint, e.g. ws://localhost:8080/ws.
	URL string

	// Header is sent with the WebSocket handshake.
	Header http.Header

	// Login and Passcode are sent on CONNECT when set.
	Login    string
	Passcode string

	// HeartbeatInterval is advertised on CONNECT as both the period we can
	// send at and the period we would like to receive at. The inbound side
	// is only requested when HeartbeatTimeout is set.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// Dialer is the WebSocket dialer; websocket.DefaultDialer when nil.
	Dialer *websocket.Dialer
}

// Dial connects, performs the STOMP CONNECT handshake and subscribes to
// topic.
func (d *WebSocketDialer) Dial(ctx context.Context, topic string) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	wd := d.Dialer
	if wd == nil {
		wd = websocket.DefaultDialer
	}

	ws, _, err := wd.DialContext(ctx, u.String(), d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	// Unblock the handshake reads below if ctx is cancelled mid-handshake.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	c := &stompConn{ws: ws}
	if err := c.handshake(d, u.Host, topic); err != nil {
		ws.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return c, nil
}

// stompConn is a subscribed STOMP session.
type stompConn struct {
	ws *websocket.Conn

	// send and expect are the negotiated heart-beat periods.
	send   time.Duration
	expect time.Duration

	writeMu sync.Mutex
	closed  bool
}

func (c *stompConn) handshake(d *WebSocketDialer, host, topic string) error {
	cx := d.HeartbeatInterval
	var cy time.Duration
	if d.HeartbeatTimeout > 0 {
		cy = d.HeartbeatInterval
	}
	headers := []string{
		frame.AcceptVersion, "1.2",
		frame.Host, host,
		frame.HeartBeat, fmt.Sprintf("%d,%d", cx.Milliseconds(), cy.Milliseconds()),
	}
	if d.Login != "" {
		headers = append(headers, frame.Login, d.Login, frame.Passcode, d.Passcode)
	}
	if err := c.write(frame.New(frame.CONNECT, headers...)); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	for {
		f, err := c.read()
		if err != nil {
			return fmt.Errorf("await CONNECTED: %w", err)
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECTED:
			sx, sy, err := parseHeartBeat(f.Header.Get(frame.HeartBeat))
			if err != nil {
				return err
			}
			c.send = negotiate(cx, sy)
			c.expect = negotiate(cy, sx)

			sub := frame.New(frame.SUBSCRIBE,
				frame.Id, subscriptionID,
				frame.Destination, topic,
				frame.Ack, "auto",
			)
			if err := c.write(sub); err != nil {
				return fmt.Errorf("send SUBSCRIBE: %w", err)
			}
			return nil
		case frame.ERROR:
			return brokerError(f)
		default:
			return fmt.Errorf("unexpected %s frame before CONNECTED", f.Command)
		}
	}
}

// Heartbeats implements HeartbeatNegotiator.
func (c *stompConn) Heartbeats() (send, expect time.Duration) {
	return c.send, c.expect
}

// Receive implements Conn.
func (c *stompConn) Receive() (Frame, error) {
	for {
		f, err := c.read()
		if err != nil {
			return Frame{}, err
		}
		if f == nil {
			return Frame{Heartbeat: true}, nil
		}
		switch f.Command {
		case frame.MESSAGE:
			return Frame{Body: f.Body}, nil
		case frame.ERROR:
			return Frame{}, brokerError(f)
		default:
			// RECEIPT and anything else only prove liveness.
			return Frame{Heartbeat: true}, nil
		}
	}
}

// SendHeartbeat implements Conn.
func (c *stompConn) SendHeartbeat() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, heartbeatPayload)
}

// Close sends DISCONNECT on a best-effort basis and closes the socket.
func (c *stompConn) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	c.writeMu.Unlock()

	_ = c.write(frame.New(frame.DISCONNECT))
	return c.ws.Close()
}

// read returns the next frame, or nil for a heart-beat message.
func (c *stompConn) read() (*frame.Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	r := frame.NewReader(bytes.NewReader(data))
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode stomp frame: %w", err)
		}
		if f != nil {
			return f, nil
		}
	}
}

func (c *stompConn) write(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// parseHeartBeat reads a CONNECTED heart-beat header. A missing header
// means the broker does no heart-beating.
func parseHeartBeat(v string) (sx, sy time.Duration, err error) {
	if v == "" {
		return 0, 0, nil
	}
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0, fmt.Errorf("malformed heart-beat header %q", v)
	}
	x, errX := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	y, errY := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("malformed heart-beat header %q", v)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// negotiate applies the STOMP rule for one direction: no heart-beats when
// either side declines, otherwise the slower of the two periods.
func negotiate(ours, theirs time.Duration) time.Duration {
	if ours <= 0 || theirs <= 0 {
		return 0
	}
	return max(ours, theirs)
}

func brokerError(f *frame.Frame) error {
	msg := f.Header.Get(frame.Message)
	if msg == "" {
		msg = string(bytes.TrimSpace(f.Body))
	}
	return fmt.Errorf("broker error: %s", msg)
}
