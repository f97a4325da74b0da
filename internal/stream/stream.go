// Package stream watches the Polymarket real-time activity feed and kicks
// the matching poller when a monitored wallet trades. It is a latency
// shortcut only: polling remains the source of truth and the pipeline
// behaves identically with the stream disabled or down.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/betbot/copytrader/pkg/logger"
)

const (
	handshakeTimeout = 30 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
	pingInterval     = 5 * time.Second

	minBackoff = time.Second
	maxBackoff = time.Minute
)

// Kicker is the poller-nudging side of the copy service.
type Kicker interface {
	Kick(source string) bool
}

// envelope is the outer frame of every feed message.
type envelope struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type subscription struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"`
}

type subscribeRequest struct {
	Action        string         `json:"action"`
	Subscriptions []subscription `json:"subscriptions"`
}

// activityTrade is the subset of the activity payload the watcher needs.
// The feed reports the trading wallet as proxyWallet; the maker and taker
// fields cover the raw on-chain shape some message types carry instead.
type activityTrade struct {
	ProxyWallet  string `json:"proxyWallet"`
	MakerAddress string `json:"maker_address"`
	TakerAddress string `json:"taker_address"`
	Side         string `json:"side"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
}

// Watcher holds one subscription to the activity feed. Filtering happens
// client side: the feed's activity filters select markets, not wallets.
type Watcher struct {
	url      string
	proxyURL string
	sources  map[string]struct{}
	kicker   Kicker

	mu          sync.RWMutex
	connected   bool
	lastEventAt time.Time
}

// New builds a watcher for the given wallet addresses. proxyURL may be
// empty for a direct connection.
func New(wsURL, proxyURL string, sources []string, kicker Kicker) *Watcher {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[strings.ToLower(s)] = struct{}{}
	}
	return &Watcher{
		url:      wsURL,
		proxyURL: proxyURL,
		sources:  set,
		kicker:   kicker,
	}
}

// Connected reports whether a feed session is currently established.
func (w *Watcher) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// LastEventAt returns the receive time of the most recent feed message.
func (w *Watcher) LastEventAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastEventAt
}

// Run connects, subscribes and reads until ctx is done, reconnecting with
// capped exponential backoff. Sessions that survive past a minute reset
// the backoff.
func (w *Watcher) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		err := w.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			backoff = minBackoff
		}
		logger.Warnf("stream: session ended: %v, reconnecting in %s", err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session runs one connect-subscribe-read cycle and returns when the
// connection drops or ctx is cancelled.
func (w *Watcher) session(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := w.subscribe(conn); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	w.setConnected(true)
	defer w.setConnected(false)
	logger.Infof("stream: connected to %s, watching %d wallets", w.url, len(w.sources))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			_ = conn.Close()
		case <-done:
		}
	}()
	go w.pingLoop(conn, done)

	return w.readLoop(conn)
}

func (w *Watcher) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if w.proxyURL != "" {
		proxyURL, err := url.Parse(w.proxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse proxy url")
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", w.url)
	}
	return conn, nil
}

func (w *Watcher) subscribe(conn *websocket.Conn) error {
	req := subscribeRequest{
		Action: "subscribe",
		Subscriptions: []subscription{
			{Topic: "activity", Type: "trades"},
		},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(req)
}

// pingLoop keeps the session alive. Control frames may be written
// concurrently with the read loop's data writes.
func (w *Watcher) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (w *Watcher) readLoop(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.Wrap(err, "read")
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.noteEvent()

		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			continue
		}
		// The server occasionally heartbeats in plain text.
		if string(trimmed) == "PING" {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG"))
			continue
		}
		if string(trimmed) == "PONG" {
			continue
		}

		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			logger.Debugf("stream: unparseable frame (%d bytes): %v", len(trimmed), err)
			continue
		}
		if env.Topic != "activity" || len(env.Payload) == 0 {
			continue
		}
		w.handleActivity(env.Payload)
	}
}

// handleActivity matches trades against the monitored wallets. The payload
// is a single trade or a batch, depending on the server.
func (w *Watcher) handleActivity(payload json.RawMessage) {
	var trades []activityTrade
	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("[")) {
		if err := json.Unmarshal(payload, &trades); err != nil {
			logger.Debugf("stream: bad activity batch: %v", err)
			return
		}
	} else {
		var one activityTrade
		if err := json.Unmarshal(payload, &one); err != nil {
			logger.Debugf("stream: bad activity trade: %v", err)
			return
		}
		trades = append(trades, one)
	}

	for _, trade := range trades {
		for _, addr := range []string{trade.ProxyWallet, trade.MakerAddress, trade.TakerAddress} {
			addr = strings.ToLower(addr)
			if addr == "" {
				continue
			}
			if _, ok := w.sources[addr]; !ok {
				continue
			}
			if w.kicker.Kick(addr) {
				logger.Debugf("stream: %s %s on %q, kicked poller", addr, trade.Side, trade.Title)
			}
			break
		}
	}
}

func (w *Watcher) setConnected(connected bool) {
	w.mu.Lock()
	w.connected = connected
	w.mu.Unlock()
}

func (w *Watcher) noteEvent() {
	w.mu.Lock()
	w.lastEventAt = time.Now()
	w.mu.Unlock()
}
