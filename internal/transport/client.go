// Package transport maintains the single logical realtime connection to the
// backend: a websocket carrying the text subprotocol from internal/stomp,
// multiplexed by destination, with bidirectional heartbeats and automatic
// reconnection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"vibez-client/internal/auth"
	"vibez-client/internal/observability"
	"vibez-client/internal/stomp"
)

// State names the transport's connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

var (
	// ErrAuthRejected marks a CONNECT refused by the backend. It is not
	// retried; the session token must be refreshed first.
	ErrAuthRejected = errors.New("realtime connect rejected by backend")
	// ErrNotConnected is returned by Send while no session is live.
	ErrNotConnected = errors.New("realtime transport not connected")
	// ErrAlreadySubscribed guards against duplicate destination handlers.
	ErrAlreadySubscribed = errors.New("destination already subscribed")

	errSendQueueFull = errors.New("outbound frame queue full")
)

// MessageHandler consumes the body of a MESSAGE frame for one destination.
// Handlers run on the read loop: frames for a destination arrive in order
// and handlers must not block.
type MessageHandler func(destination string, body []byte)

// Config carries transport settings.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/ws-raw.
	URL string
	// HeartBeat is the client's proposal sent on CONNECT. Defaults to
	// 10s,10s, the value the backend has been observed to accept.
	HeartBeat stomp.HeartBeat
	// ReconnectDelay is the fixed pause between reconnect attempts.
	// Defaults to 5 seconds.
	ReconnectDelay time.Duration
	// HandshakeTimeout bounds the CONNECT/CONNECTED exchange.
	HandshakeTimeout time.Duration

	Logger zerolog.Logger
}

// Client is the realtime transport. One Client owns one logical duplex
// connection; the chat manager and the notifier share it and only the
// client's write loop ever touches the socket.
type Client struct {
	cfg    Config
	tokens auth.TokenSource
	logger zerolog.Logger
	dialer *websocket.Dialer

	mu     sync.RWMutex
	state  State
	subs   map[string]*subscription
	subSeq int
	sess   *session
	stop   chan struct{}
	closed bool

	// OnStateChange, when set, observes every lifecycle transition. Called
	// outside the client lock.
	OnStateChange func(State)
	// OnConnectionLost, when set, is told why reconnection gave up for
	// good (auth rejection during a reconnect cycle).
	OnConnectionLost func(error)
}

type subscription struct {
	id          string
	destination string
	handler     MessageHandler
}

// session is one live websocket connection. A failed session closes done
// exactly once; the supervisor decides what happens next.
type session struct {
	conn     *websocket.Conn
	out      chan []byte
	done     chan struct{}
	failOnce sync.Once
	sendHB   time.Duration
	recvHB   time.Duration
}

func (s *session) fail() {
	s.failOnce.Do(func() { close(s.done) })
}

// NewClient builds a transport client. Connect must be called before Send.
func NewClient(cfg Config, tokens auth.TokenSource) *Client {
	if cfg.HeartBeat == (stomp.HeartBeat{}) {
		cfg.HeartBeat = stomp.HeartBeat{SendInterval: 10 * time.Second, RecvInterval: 10 * time.Second}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		logger: cfg.Logger.With().Str("component", "transport").Logger(),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		subs:   make(map[string]*subscription),
		stop:   make(chan struct{}),
	}
}

// State reports the current lifecycle phase.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Destinations lists the currently registered destinations.
func (c *Client) Destinations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for dest := range c.subs {
		out = append(out, dest)
	}
	return out
}

// Subscribe registers a handler for one destination. Registered
// destinations survive reconnects: each successful CONNECT re-issues
// exactly one SUBSCRIBE per destination.
func (c *Client) Subscribe(destination string, handler MessageHandler) error {
	c.mu.Lock()
	if _, ok := c.subs[destination]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, destination)
	}
	c.subSeq++
	sub := &subscription{
		id:          fmt.Sprintf("sub-%d", c.subSeq),
		destination: destination,
		handler:     handler,
	}
	c.subs[destination] = sub
	sess := c.sess
	count := len(c.subs)
	c.mu.Unlock()

	observability.SetSubscriptions(count)
	if sess != nil {
		return c.enqueue(sess, subscribeFrame(sub))
	}
	return nil
}

// Send publishes a JSON payload to a destination. Fire-and-forget: no
// acknowledgement is awaited, reliability comes from the server's
// broadcast arriving back on a subscribed queue.
func (c *Client) Send(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	frame := stomp.NewFrame(stomp.CmdSend,
		stomp.HdrDestination, destination,
		stomp.HdrContentType, "application/json",
	)
	frame.Body = body

	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		return ErrNotConnected
	}
	return c.enqueue(sess, frame)
}

func (c *Client) enqueue(sess *session, frame stomp.Frame) error {
	select {
	case sess.out <- stomp.Marshal(frame):
		observability.IncFrame("out", string(frame.Command))
		return nil
	case <-sess.done:
		return ErrNotConnected
	default:
		return errSendQueueFull
	}
}

// Connect dials the realtime endpoint and blocks until the first session
// is established. Transient failures are retried with the fixed delay;
// an authentication rejection is returned immediately and not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("transport closed")
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect from state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	retry := backoff.NewConstantBackOff(c.cfg.ReconnectDelay)
	for {
		sess, err := c.dial(ctx)
		if err == nil {
			c.install(sess)
			return nil
		}
		if errors.Is(err, ErrAuthRejected) {
			c.setState(StateDisconnected)
			return err
		}
		c.logger.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("connect failed")
		select {
		case <-time.After(retry.NextBackOff()):
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.stop:
			c.setState(StateDisconnected)
			return errors.New("transport closed")
		}
	}
}

// Disconnect sends a graceful close and suppresses further reconnects.
// Safe to call from any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	sess := c.sess
	c.sess = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if sess != nil {
		deadline := time.Now().Add(time.Second)
		_ = sess.conn.SetWriteDeadline(deadline)
		_ = sess.conn.WriteMessage(websocket.TextMessage, stomp.Marshal(stomp.NewFrame(stomp.CmdDisconnect)))
		_ = sess.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		sess.fail()
		_ = sess.conn.Close()
	}
	c.notifyState(StateDisconnected)
}

// dial performs one websocket dial plus CONNECT/CONNECTED handshake and
// re-issues every registered subscription before handing the connection
// to the read/write loops.
func (c *Client) dial(ctx context.Context) (*session, error) {
	ctx, span := otel.Tracer("vibez-client/transport").Start(ctx, "ws.connect")
	defer span.End()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	connect := stomp.NewFrame(stomp.CmdConnect,
		stomp.HdrAcceptVersion, "1.1,1.0",
		stomp.HdrHeartBeat, c.cfg.HeartBeat.String(),
		stomp.HdrAuthorization, "Bearer "+token,
	)
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, stomp.Marshal(connect)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write connect: %w", err)
	}
	observability.IncFrame("out", string(stomp.CmdConnect))

	reply, err := readFrame(conn, deadline)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("await connected: %w", err)
	}
	observability.IncFrame("in", string(reply.Command))

	switch reply.Command {
	case stomp.CmdConnected:
	case stomp.CmdError:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, reply.Header(stomp.HdrMessage))
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected %s during handshake", reply.Command)
	}

	serverHB, err := stomp.ParseHeartBeat(reply.Header(stomp.HdrHeartBeat))
	if err != nil {
		serverHB = stomp.HeartBeat{}
	}
	sendHB, recvHB := stomp.Negotiate(c.cfg.HeartBeat, serverHB)

	sess := &session{
		conn:   conn,
		out:    make(chan []byte, 64),
		done:   make(chan struct{}),
		sendHB: sendHB,
		recvHB: recvHB,
	}

	c.mu.RLock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	for _, sub := range subs {
		if err := conn.WriteMessage(websocket.TextMessage, stomp.Marshal(subscribeFrame(sub))); err != nil {
			conn.Close()
			return nil, fmt.Errorf("resubscribe %s: %w", sub.destination, err)
		}
		observability.IncFrame("out", string(stomp.CmdSubscribe))
	}
	_ = conn.SetWriteDeadline(time.Time{})

	c.logger.Info().
		Str("url", c.cfg.URL).
		Int("destinations", len(subs)).
		Dur("hb_send", sendHB).
		Dur("hb_recv", recvHB).
		Msg("realtime connected")
	return sess, nil
}

func (c *Client) install(sess *session) {
	c.mu.Lock()
	c.sess = sess
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(sess)
	go c.writeLoop(sess)
	go c.supervise(sess)
	c.notifyState(StateConnected)
}

// supervise waits for session failure and drives the reconnect cycle.
func (c *Client) supervise(sess *session) {
	<-sess.done
	_ = sess.conn.Close()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.state = StateReconnecting
	c.mu.Unlock()
	c.notifyState(StateReconnecting)

	retry := backoff.NewConstantBackOff(c.cfg.ReconnectDelay)
	for {
		select {
		case <-time.After(retry.NextBackOff()):
		case <-c.stop:
			return
		}

		observability.IncReconnect()
		next, err := c.dial(context.Background())
		if err == nil {
			c.install(next)
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			c.logger.Error().Err(err).Msg("reconnect rejected, giving up")
			c.setState(StateDisconnected)
			if c.OnConnectionLost != nil {
				c.OnConnectionLost(err)
			}
			return
		}
		c.logger.Warn().Err(err).Msg("reconnect failed")
	}
}

func (c *Client) readLoop(sess *session) {
	for {
		if sess.recvHB > 0 {
			// Twice the negotiated interval is the tolerance window.
			_ = sess.conn.SetReadDeadline(time.Now().Add(2 * sess.recvHB))
		}
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				observability.IncHeartbeatTimeout()
				c.logger.Warn().Msg("heartbeat window elapsed without data")
			} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("read failed")
			}
			sess.fail()
			return
		}
		if stomp.IsHeartbeat(raw) {
			continue
		}

		frame, err := stomp.Parse(raw)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		observability.IncFrame("in", string(frame.Command))

		switch frame.Command {
		case stomp.CmdMessage:
			c.dispatch(frame)
		case stomp.CmdError:
			c.logger.Warn().Str("message", frame.Header(stomp.HdrMessage)).Msg("server error frame")
			sess.fail()
			return
		case stomp.CmdReceipt:
			// Receipts are not requested; ignore.
		default:
			c.logger.Debug().Str("command", string(frame.Command)).Msg("ignoring frame")
		}
	}
}

// dispatch routes a MESSAGE frame to its destination handler, on the read
// loop so frames for one destination are always processed in order.
func (c *Client) dispatch(frame stomp.Frame) {
	dest := frame.Header(stomp.HdrDestination)
	c.mu.RLock()
	sub := c.subs[dest]
	c.mu.RUnlock()
	if sub == nil {
		c.logger.Debug().Str("destination", dest).Msg("frame for unknown destination")
		return
	}
	sub.handler(dest, frame.Body)
}

func (c *Client) writeLoop(sess *session) {
	var heartbeat <-chan time.Time
	if sess.sendHB > 0 {
		ticker := time.NewTicker(sess.sendHB)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	for {
		select {
		case payload := <-sess.out:
			if err := sess.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn().Err(err).Msg("write failed")
				sess.fail()
				return
			}
		case <-heartbeat:
			if err := sess.conn.WriteMessage(websocket.TextMessage, stomp.Heartbeat); err != nil {
				sess.fail()
				return
			}
		case <-sess.done:
			return
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notifyState(s)
}

func (c *Client) notifyState(s State) {
	if c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}

func subscribeFrame(sub *subscription) stomp.Frame {
	return stomp.NewFrame(stomp.CmdSubscribe,
		stomp.HdrID, sub.id,
		stomp.HdrDestination, sub.destination,
	)
}

func readFrame(conn *websocket.Conn, deadline time.Time) (stomp.Frame, error) {
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return stomp.Frame{}, err
		}
		if stomp.IsHeartbeat(raw) {
			continue
		}
		return stomp.Parse(raw)
	}
}
