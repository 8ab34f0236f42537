package webos

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"iris/internal/credstore"
	"iris/internal/logger"
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuthorization
	StateReady
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// resolvedCacheSize bounds the memory kept for late-response detection.
const resolvedCacheSize = 512

// Options configures a Client.
type Options struct {
	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration

	// PairingTimeout bounds the whole registration exchange, including the
	// wait for the user to accept the on-screen prompt.
	PairingTimeout time.Duration

	// MAC is recorded alongside the issued credential.
	MAC string
}

func (o *Options) setDefaults() {
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.PairingTimeout == 0 {
		o.PairingTimeout = 60 * time.Second
	}
}

// Client owns the single live session to one TV. Commands from any goroutine
// share the session; (re)establishment is serialized so concurrent callers
// join an in-flight attempt instead of opening duplicate transports.
type Client struct {
	host   string
	store  *credstore.Store
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	cur     *session
	attempt *attempt
}

// attempt is one in-flight establishment. Callers wait on done with their
// own context, so a slow pairing prompt never blocks anyone's deadline.
type attempt struct {
	done chan struct{}
	sess *session
	err  error
}

// NewClient creates a client for the TV at host. The host may carry an
// explicit port; otherwise the default control port is used.
func NewClient(host string, store *credstore.Store, opts Options) *Client {
	opts.setDefaults()
	return &Client{
		host:   host,
		store:  store,
		opts:   opts,
		logger: logger.New(),
		state:  StateDisconnected,
	}
}

// Host returns the configured TV host.
func (c *Client) Host() string {
	return c.host
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Paired reports whether a stored credential exists for this TV.
func (c *Client) Paired() bool {
	_, ok := c.store.Load(c.host)
	return ok
}

// BeginPairing establishes a session, driving the first-time registration
// prompt if no credential is stored. It blocks until the session is Ready or
// the pairing window closes.
func (c *Client) BeginPairing(ctx context.Context) error {
	_, err := c.session(ctx)
	return err
}

// Request issues a command over the established session, correlates the
// response, and enforces the per-call timeout. The session is established
// on demand.
func (c *Client) Request(ctx context.Context, uri string, payload any, timeout time.Duration) (json.RawMessage, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.request(ctx, uri, payload, timeout)
}

// Close tears down the current session, if any. The next command starts a
// fresh one.
func (c *Client) Close() {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()

	if s != nil {
		s.teardown(nil)
	}
}

// addr returns the dial address, defaulting the port.
func (c *Client) addr() string {
	if strings.Contains(c.host, ":") {
		return c.host
	}
	return fmt.Sprintf("%s:%d", c.host, ControlPort)
}

// session returns the live session, joining or starting an establishment
// attempt as needed.
func (c *Client) session(ctx context.Context) (*session, error) {
	c.mu.Lock()
	if c.cur != nil && c.cur.ready() {
		s := c.cur
		c.mu.Unlock()
		return s, nil
	}
	c.cur = nil

	if c.attempt == nil {
		a := &attempt{done: make(chan struct{})}
		c.attempt = a
		c.setStateLocked(StateConnecting)
		go c.establish(a)
	}
	a := c.attempt
	c.mu.Unlock()

	select {
	case <-a.done:
		return a.sess, a.err
	case <-ctx.Done():
		// The attempt keeps running for other joiners; only this caller
		// gives up.
		return nil, ctx.Err()
	}
}

// establish runs one connection attempt to completion and publishes the
// result to every joined caller.
func (c *Client) establish(a *attempt) {
	sess, err := c.dialAndRegister()

	c.mu.Lock()
	c.attempt = nil
	if err != nil {
		c.setStateLocked(StateFailed)
		a.err = err
	} else {
		c.cur = sess
		c.setStateLocked(StateReady)
		a.sess = sess
	}
	c.mu.Unlock()

	close(a.done)
}

// dialAndRegister opens the transport and upgrades it into an authorized
// session. It holds no Client lock while blocked on the pairing prompt.
func (c *Client) dialAndRegister() (*session, error) {
	u := url.URL{Scheme: "ws", Host: c.addr(), Path: "/"}

	c.logger.Info().
		Str("url", u.String()).
		Msg("Connecting to TV control endpoint")

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	c.setState(StateAwaitingAuthorization)

	cred, hadKey := c.store.Load(c.host)
	regID := uuid.NewString()

	reg, err := newRegisterMessage(regID, cred.ClientKey)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(reg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to send registration: %v", ErrProtocol, err)
	}

	c.logger.Info().
		Str("host", c.host).
		Bool("stored_credential", hadKey).
		Msg("Registration sent, awaiting authorization")

	// The whole exchange, prompt wait included, runs against one deadline.
	_ = conn.SetReadDeadline(time.Now().Add(c.opts.PairingTimeout))

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil, ErrPairingTimeout
			}
			return nil, fmt.Errorf("%w: registration read failed: %v", ErrProtocol, err)
		}

		switch msg.Type {
		case TypeResponse:
			var resp registerResponse
			_ = json.Unmarshal(msg.Payload, &resp)
			if resp.PairingType == "PROMPT" {
				c.logger.Info().
					Str("host", c.host).
					Msg("Pairing prompt shown on TV, waiting for acceptance")
			}

		case TypeRegistered:
			var resp registerResponse
			if err := json.Unmarshal(msg.Payload, &resp); err != nil || resp.ClientKey == "" {
				conn.Close()
				return nil, fmt.Errorf("%w: registered without client key", ErrProtocol)
			}
			// A fresh key must be durable before the session counts as Ready
			if resp.ClientKey != cred.ClientKey {
				newCred := credstore.Credential{
					ClientKey: resp.ClientKey,
					MAC:       c.opts.MAC,
					IssuedAt:  time.Now().UTC(),
				}
				if err := c.store.Save(c.host, newCred); err != nil {
					conn.Close()
					return nil, err
				}
			}
			_ = conn.SetReadDeadline(time.Time{})
			c.logger.Info().
				Str("host", c.host).
				Bool("first_pairing", !hadKey).
				Msg("Session authorized")
			return c.newSession(conn), nil

		case TypeError:
			conn.Close()
			if hadKey {
				if err := c.store.Delete(c.host); err != nil {
					c.logger.Warn().
						Err(err).
						Str("host", c.host).
						Msg("Failed to discard revoked credential")
				}
				return nil, fmt.Errorf("%w: stored credential revoked: %s", ErrPairingRejected, msg.Error)
			}
			return nil, fmt.Errorf("%w: %s", ErrPairingRejected, msg.Error)

		default:
			c.logger.Debug().
				Str("type", msg.Type).
				Msg("Ignoring frame during registration")
		}
	}
}

func (c *Client) setState(st State) {
	c.mu.Lock()
	c.setStateLocked(st)
	c.mu.Unlock()
}

func (c *Client) setStateLocked(st State) {
	if c.state == st {
		return
	}
	c.logger.Debug().
		Str("from", c.state.String()).
		Str("to", st.String()).
		Msg("Session state changed")
	c.state = st
}

// sessionClosed is called by a session tearing itself down.
func (c *Client) sessionClosed(s *session) {
	c.mu.Lock()
	if c.cur == s {
		c.cur = nil
		c.setStateLocked(StateClosed)
	}
	c.mu.Unlock()
}

// session is one live, authorized connection. It owns the read pump and the
// pending-request table; correlation ids are unique for its lifetime.
type session struct {
	client *Client
	conn   *websocket.Conn
	logger zerolog.Logger

	// writeMu serializes frame writes; gorilla allows one writer at a time.
	writeMu sync.Mutex

	mu       sync.Mutex
	alive    bool
	pending  map[string]chan *Message
	resolved *lru.Cache[string, time.Time]

	// closed fires on teardown so every outstanding wait fails fast.
	closed chan struct{}

	inputMu   sync.Mutex
	inputConn *websocket.Conn
}

func (c *Client) newSession(conn *websocket.Conn) *session {
	resolved, _ := lru.New[string, time.Time](resolvedCacheSize)

	s := &session{
		client:   c,
		conn:     conn,
		logger:   c.logger.With().Str("host", c.host).Logger(),
		alive:    true,
		pending:  make(map[string]chan *Message),
		resolved: resolved,
		closed:   make(chan struct{}),
	}

	go s.readLoop()

	return s
}

func (s *session) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// request transmits one framed command and suspends the caller until the
// correlated response arrives, the deadline elapses, or the session breaks.
func (s *session) request(ctx context.Context, uri string, payload any, timeout time.Duration) (json.RawMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal command payload: %w", err)
		}
		raw = data
	}

	id := uuid.NewString()
	ch := make(chan *Message, 1)

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session closed", ErrProtocol)
	}
	s.pending[id] = ch
	s.mu.Unlock()

	msg := &Message{Type: TypeRequest, ID: id, URI: uri, Payload: raw}

	s.writeMu.Lock()
	err := s.conn.WriteJSON(msg)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(id)
		return nil, fmt.Errorf("%w: command write failed: %v", ErrProtocol, err)
	}

	s.logger.Debug().
		Str("id", id).
		Str("uri", uri).
		Msg("Command sent")

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Type == TypeError {
			return resp.Payload, fmt.Errorf("%w: %s", ErrProtocol, resp.Error)
		}
		if err := decodeResult(resp.Payload); err != nil {
			return resp.Payload, err
		}
		return resp.Payload, nil

	case <-timer.C:
		s.forget(id)
		s.logger.Warn().
			Str("id", id).
			Str("uri", uri).
			Dur("timeout", timeout).
			Msg("Command response deadline elapsed")
		return nil, ErrCommandTimeout

	case <-s.closed:
		return nil, fmt.Errorf("%w: %w", ErrProtocol, ErrClosedMidFlight)

	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}
}

// forget deregisters a pending entry and remembers the id so a late arrival
// is recognized and dropped instead of resolving anyone else's wait.
func (s *session) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.resolved.Add(id, time.Now())
	s.mu.Unlock()
}

// readLoop pumps incoming frames until the transport closes.
func (s *session) readLoop() {
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.teardown(err)
			return
		}
		s.dispatch(&msg)
	}
}

// dispatch resolves a frame against the pending table. Each id resolves
// exactly once; everything else is logged and dropped.
func (s *session) dispatch(msg *Message) {
	if msg.ID == "" {
		s.logger.Debug().
			Str("type", msg.Type).
			Msg("Dropping frame without correlation id")
		return
	}

	s.mu.Lock()
	if ch, ok := s.pending[msg.ID]; ok {
		delete(s.pending, msg.ID)
		s.resolved.Add(msg.ID, time.Now())
		s.mu.Unlock()
		ch <- msg
		return
	}
	_, late := s.resolved.Get(msg.ID)
	s.mu.Unlock()

	if late {
		s.logger.Debug().
			Str("id", msg.ID).
			Msg("Dropping late response for already resolved request")
	} else {
		s.logger.Warn().
			Str("id", msg.ID).
			Str("type", msg.Type).
			Msg("Dropping response with unknown correlation id")
	}
}

// teardown closes the session exactly once and fails every outstanding wait.
func (s *session) teardown(cause error) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	outstanding := len(s.pending)
	s.pending = make(map[string]chan *Message)
	close(s.closed)
	s.mu.Unlock()

	s.conn.Close()

	s.inputMu.Lock()
	if s.inputConn != nil {
		s.inputConn.Close()
		s.inputConn = nil
	}
	s.inputMu.Unlock()

	s.client.sessionClosed(s)

	evt := s.logger.Info()
	if cause != nil {
		evt = s.logger.Warn().Err(cause)
	}
	evt.Int("outstanding_requests", outstanding).
		Msg("Session closed")
}
