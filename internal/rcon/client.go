package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// State is one node of the RCON connection state machine (spec §4.6).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedUnauth
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedUnauth:
		return "connected_unauth"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var (
	ErrAuthenticationFailed = errors.New("rcon: authentication failed")
	ErrAuthTimeout          = errors.New("rcon: authentication timed out")
	ErrNoResponse           = errors.New("rcon: no response")
	ErrNotAuthenticated     = errors.New("rcon: not authenticated")
)

const (
	connectTimeout  = 15 * time.Second
	absoluteTimeout = 10 * time.Second
	silenceWindow   = 1 * time.Second
	reconnectWait   = 15 * time.Second
	cacheMaxEntries = 50
)

type frameOrRaw struct {
	pkt decodedPacket
	raw string
	ok  bool
}

type cacheEntry struct {
	value string
	at    time.Time
}

// Client is a single-in-flight, auto-reconnecting RCON connection.
// Grounded on the teacher's gslistener.GSConnection (mutex-guarded state
// struct with a State()/SetState() accessor pair) and
// internal/protocol.ReadPacket/WritePacket's length-prefixed framing,
// generalized from the encrypted login protocol to RCON's plaintext one.
type Client struct {
	host     string
	port     int
	password string
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	state State
	conn  net.Conn

	frames  chan frameOrRaw
	readErr chan error

	sendMu    sync.Mutex
	idCounter int32

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	cbMu         sync.Mutex
	onDisconnect func(error)
	onReconnect  func(time.Duration)
}

// New builds a Client targeting host:port, authenticating with password.
func New(host string, port int, password string, logger *zap.SugaredLogger) *Client {
	return &Client{
		host:     host,
		port:     port,
		password: password,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
	}
}

// OnDisconnect registers the callback fired once per disconnection.
func (c *Client) OnDisconnect(fn func(error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onDisconnect = fn
}

// OnReconnect registers the callback fired on successful reconnect, with
// the measured downtime.
func (c *Client) OnReconnect(fn func(time.Duration)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onReconnect = fn
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) getConn() net.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Run connects and then supervises the connection for the lifetime of ctx,
// reconnecting on any socket error with a constant 15s wait (spec §4.6
// "Reconnect... no exponential backoff is specified").
func (c *Client) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("initial rcon connect: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-c.readErr:
			c.setState(StateDisconnected)
			disconnectedAt := time.Now()
			c.fireDisconnect(err)

			b := backoff.WithContext(backoff.NewConstantBackOff(reconnectWait), ctx)
			retryErr := backoff.Retry(func() error {
				return c.connect(ctx)
			}, b)
			if retryErr != nil {
				return fmt.Errorf("rcon reconnect abandoned: %w", retryErr)
			}
			c.fireReconnect(time.Since(disconnectedAt))
		}
	}
}

func (c *Client) fireDisconnect(reason error) {
	c.cbMu.Lock()
	fn := c.onDisconnect
	c.cbMu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

func (c *Client) fireReconnect(downtime time.Duration) {
	c.cbMu.Lock()
	fn := c.onReconnect
	c.cbMu.Unlock()
	if fn != nil {
		fn(downtime)
	}
}

// connect establishes the TCP socket and performs the auth handshake.
func (c *Client) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnectedUnauth)

	c.frames = make(chan frameOrRaw, 32)
	c.readErr = make(chan error, 1)
	go c.readLoop(conn)

	if err := c.authenticate(); err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateAuthenticated)
	if c.logger != nil {
		c.logger.Infow("rcon connected", "host", c.host, "port", c.port)
	}
	return nil
}

// authenticate sends the AUTH packet and waits for the server's verdict
// (spec §4.6 "Connect"): id==1 with type in {0,2} confirms, id==-1 fails,
// a leading empty type=0/id=1 padding packet is skipped.
func (c *Client) authenticate() error {
	pkt := encodePacket(1, TypeAuth, c.password)
	if _, err := c.conn.Write(pkt); err != nil {
		return fmt.Errorf("writing auth packet: %w", err)
	}

	deadline := time.NewTimer(connectTimeout)
	defer deadline.Stop()

	for {
		select {
		case f := <-c.frames:
			if !f.ok {
				continue // malformed pre-auth noise, lenient per spec §9
			}
			if f.pkt.ID == -1 {
				return ErrAuthenticationFailed
			}
			if f.pkt.ID == 1 && f.pkt.Type == TypeResponseValue && f.pkt.Body == "" {
				continue // padding packet
			}
			if f.pkt.ID == 1 && (f.pkt.Type == TypeResponseValue || f.pkt.Type == TypeExecCommand) {
				return nil
			}
		case err := <-c.readErr:
			return fmt.Errorf("connection closed during auth: %w", err)
		case <-deadline.C:
			return ErrAuthTimeout
		}
	}
}

// readLoop accumulates bytes off conn and dispatches complete (or
// malformed) frames onto c.frames until the connection errors or closes.
func (c *Client) readLoop(conn net.Conn) {
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				pkt, consumed, ok := readFrame(buf)
				if consumed == 0 {
					break
				}
				if ok {
					c.frames <- frameOrRaw{pkt: pkt, ok: true}
				} else {
					c.frames <- frameOrRaw{raw: string(buf[:consumed]), ok: false}
				}
				buf = buf[consumed:]
			}
		}
		if err != nil {
			select {
			case c.readErr <- err:
			default:
			}
			return
		}
	}
}

// Send issues command through the single in-flight queue (spec §4.6
// "Send"): the caller blocks until any prior Send has resolved, then
// waits for the response to stop arriving (1s trailing silence) or for
// the 10s absolute timeout, whichever comes first.
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.State() != StateAuthenticated {
		return "", ErrNotAuthenticated
	}
	conn := c.getConn()
	id := maskID(atomic.AddInt32(&c.idCounter, 1))
	pkt := encodePacket(id, TypeExecCommand, command)
	if _, err := conn.Write(pkt); err != nil {
		return "", fmt.Errorf("writing command %q: %w", command, err)
	}

	var acc strings.Builder
	absolute := time.NewTimer(absoluteTimeout)
	defer absolute.Stop()
	var silence *time.Timer
	defer func() {
		if silence != nil {
			silence.Stop()
		}
	}()

	for {
		var silenceCh <-chan time.Time
		if silence != nil {
			silenceCh = silence.C
		}
		select {
		case f := <-c.frames:
			if f.ok {
				acc.WriteString(f.pkt.Body)
			} else {
				acc.WriteString(f.raw)
			}
			if silence != nil {
				silence.Stop()
			}
			silence = time.NewTimer(silenceWindow)
		case <-silenceCh:
			return acc.String(), nil
		case <-absolute.C:
			if acc.Len() > 0 {
				return acc.String(), nil
			}
			return "", ErrNoResponse
		case err := <-c.readErr:
			return "", fmt.Errorf("connection lost mid-command %q: %w", command, err)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// SendCached returns a cached response for command if one was recorded
// within ttl, otherwise issues Send and caches the result (spec §4.6
// "Cached send").
func (c *Client) SendCached(ctx context.Context, command string, ttl time.Duration) (string, error) {
	c.cacheMu.Lock()
	if e, ok := c.cache[command]; ok && time.Since(e.at) < ttl {
		value := e.value
		c.cacheMu.Unlock()
		return value, nil
	}
	c.cacheMu.Unlock()

	value, err := c.Send(ctx, command)
	if err != nil {
		return "", err
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if len(c.cache) >= cacheMaxEntries {
		cutoff := 2 * ttl
		for k, e := range c.cache {
			if time.Since(e.at) > cutoff {
				delete(c.cache, k)
			}
		}
	}
	c.cache[command] = cacheEntry{value: value, at: time.Now()}
	return value, nil
}

// RestartNow issues the server's immediate-restart command.
func (c *Client) RestartNow(ctx context.Context) error {
	_, err := c.Send(ctx, "RestartNow")
	return err
}

// QuickRestart issues the server's fallback restart command, used when
// RestartNow fails (spec §4.7 "Toggle" step 6).
func (c *Client) QuickRestart(ctx context.Context) error {
	_, err := c.Send(ctx, "QuickRestart")
	return err
}

// Broadcast sends an in-game chat broadcast.
func (c *Client) Broadcast(ctx context.Context, message string) error {
	_, err := c.Send(ctx, fmt.Sprintf("Broadcast %s", message))
	return err
}

// Close tears down the active socket.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
