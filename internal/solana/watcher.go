package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Wallet Activity Watcher — real-time wallet events via logsSubscribe
// Lets the daemon trigger a reconciliation scan as soon as the treasury
// wallet is touched instead of waiting for the next poll tick.
// ---------------------------------------------------------------------------

// WatcherConfig configures the WebSocket wallet watcher.
type WatcherConfig struct {
	WSEndpoint     string        `yaml:"ws_endpoint"`
	Wallet         Pubkey        `yaml:"wallet"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// DefaultWatcherConfig returns mainnet defaults.
func DefaultWatcherConfig(wallet Pubkey) WatcherConfig {
	return WatcherConfig{
		WSEndpoint:     "wss://api.mainnet-beta.solana.com",
		Wallet:         wallet,
		ReconnectDelay: time.Second,
		PingInterval:   30 * time.Second,
	}
}

// ActivityEvent is emitted when a transaction mentioning the wallet lands.
type ActivityEvent struct {
	Signature  Signature `json:"signature"`
	Slot       uint64    `json:"slot"`
	Failed     bool      `json:"failed"`
	DetectedAt time.Time `json:"detected_at"`
}

// Watcher streams wallet activity over a Solana WebSocket subscription.
type Watcher struct {
	config WatcherConfig

	mu   sync.RWMutex
	conn *websocket.Conn

	eventChan chan ActivityEvent
	closed    atomic.Bool

	nextSubID atomic.Int64

	// Stats.
	messagesRecv atomic.Int64
	eventsSeen   atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewWatcher creates a wallet activity watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 30 * time.Second
	}
	return &Watcher{
		config:    config,
		eventChan: make(chan ActivityEvent, 64),
	}
}

// Start begins watching. The returned channel closes when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) (<-chan ActivityEvent, error) {
	if w.config.Wallet == "" {
		return nil, fmt.Errorf("watcher: wallet address required")
	}
	go w.runLoop(ctx)
	return w.eventChan, nil
}

func (w *Watcher) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("watcher: runLoop panic recovered")
		}
		w.mu.Lock()
		if w.closed.CompareAndSwap(false, true) {
			close(w.eventChan)
		}
		w.mu.Unlock()
	}()

	reconnectDelay := w.config.ReconnectDelay
	const maxDelay = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			w.disconnect()
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			log.Warn().Err(err).Msg("watcher: connection failed")
			w.reconnects.Add(1)
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay *= 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectDelay = w.config.ReconnectDelay

		if err := w.subscribe(); err != nil {
			log.Warn().Err(err).Msg("watcher: subscribe failed")
			w.disconnect()
			continue
		}

		w.readLoop(ctx)
	}
}

func (w *Watcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("watcher: dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.connected.Store(true)

	log.Info().Str("endpoint", w.config.WSEndpoint).Msg("watcher: connected")
	return nil
}

func (w *Watcher) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected.Store(false)
}

// subscribe sends a logsSubscribe request scoped to the treasury wallet.
func (w *Watcher) subscribe() error {
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("watcher: not connected")
	}

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      w.nextSubID.Add(1),
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{
				"mentions": []string{string(w.config.Wallet)},
			},
			map[string]any{
				"commitment": "confirmed",
			},
		},
	}

	w.mu.Lock()
	err := w.conn.WriteJSON(req)
	w.mu.Unlock()

	if err != nil {
		return fmt.Errorf("watcher: write subscribe: %w", err)
	}

	log.Info().Str("wallet", shortAddr(string(w.config.Wallet))).Msg("watcher: subscribed to wallet logs")
	return nil
}

func (w *Watcher) readLoop(ctx context.Context) {
	pingTicker := time.NewTicker(w.config.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("watcher: ping failed")
					return
				}
			}
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("watcher: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("watcher: read error, reconnecting")
			}
			w.connected.Store(false)
			return
		}

		w.messagesRecv.Add(1)
		w.handleMessage(message)
	}
}

func (w *Watcher) handleMessage(data []byte) {
	var notification struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Signature string `json:"signature"`
					Err       any    `json:"err"`
				} `json:"value"`
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
			} `json:"result"`
			Subscription int `json:"subscription"`
		} `json:"params"`
	}

	if err := json.Unmarshal(data, &notification); err != nil {
		return
	}

	if notification.Method != "logsNotification" {
		// Could be a subscription confirmation response.
		var subResp struct {
			Result int `json:"result"`
		}
		if json.Unmarshal(data, &subResp) == nil && subResp.Result > 0 {
			log.Debug().Int("sub_id", subResp.Result).Msg("watcher: subscription confirmed")
		}
		return
	}

	event := ActivityEvent{
		Signature:  Signature(notification.Params.Result.Value.Signature),
		Slot:       notification.Params.Result.Context.Slot,
		Failed:     notification.Params.Result.Value.Err != nil,
		DetectedAt: time.Now().UTC(),
	}

	w.eventsSeen.Add(1)

	// Synchronize channel send with close to prevent send-on-closed-channel.
	w.mu.RLock()
	if !w.closed.Load() {
		select {
		case w.eventChan <- event:
			log.Debug().
				Str("sig", shortAddr(string(event.Signature))).
				Uint64("slot", event.Slot).
				Msg("watcher: wallet activity")
		default:
			log.Warn().Msg("watcher: event channel full, dropping event")
		}
	}
	w.mu.RUnlock()
}

// WatcherStats are watcher counters.
type WatcherStats struct {
	MessagesRecv int64 `json:"messages_recv"`
	EventsSeen   int64 `json:"events_seen"`
	Reconnects   int64 `json:"reconnects"`
	Connected    bool  `json:"connected"`
}

func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		MessagesRecv: w.messagesRecv.Load(),
		EventsSeen:   w.eventsSeen.Load(),
		Reconnects:   w.reconnects.Load(),
		Connected:    w.connected.Load(),
	}
}

// shortAddr truncates addresses and signatures for log lines.
func shortAddr(s string) string {
	if len(s) > 12 {
		return s[:12] + "..."
	}
	return s
}
