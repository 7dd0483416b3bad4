// Package polymarketevents streams live trade events from the
// Polymarket CLOB websocket. The monitor uses it as a low-latency
// complement to activity polling; the poll loop remains the source of
// truth for dedup and lifecycle.
package polymarketevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whalewatch/config"
)

const defaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

type PolymarketEventsClient struct {
	logger *zap.Logger

	marketWSURL  string
	dialer       *websocket.Dialer
	pingInterval time.Duration

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	tradeCh chan TradeEvent
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	lastMsgUnixNano int64
}

func NewPolymarketEventsClient(logger *zap.Logger, cfg *config.Config) *PolymarketEventsClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	wsURL := cfg.Polymarket.WebsocketURL
	if wsURL == "" {
		wsURL = defaultMarketWSURL
	}

	return &PolymarketEventsClient{
		logger:       logger,
		marketWSURL:  wsURL,
		dialer:       websocket.DefaultDialer,
		pingInterval: 10 * time.Second,

		tradeCh: make(chan TradeEvent, 1024),
		errCh:   make(chan error, 64),
		closeCh: make(chan struct{}),
	}
}

// TradeEvent is one fill on the market channel. Prices and sizes come
// over the wire as strings.
type TradeEvent struct {
	EventType       string `json:"event_type"`
	AssetID         string `json:"asset_id"`
	Market          string `json:"market"`
	Price           string `json:"price"`
	Size            string `json:"size"`
	Side            string `json:"side"`
	MakerAddress    string `json:"maker_address"`
	TakerAddress    string `json:"taker_address"`
	Timestamp       string `json:"timestamp"`
	TransactionHash string `json:"transaction_hash"`
	TradeID         string `json:"id"`
}

// PriceDecimal returns the fill price, zero when unparseable.
func (e *TradeEvent) PriceDecimal() decimal.Decimal {
	v, err := decimal.NewFromString(e.Price)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// SizeDecimal returns the fill size, zero when unparseable.
func (e *TradeEvent) SizeDecimal() decimal.Decimal {
	v, err := decimal.NewFromString(e.Size)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// TradedAt returns the event timestamp. The wire format is Unix
// milliseconds; seconds-scale values are accepted too.
func (e *TradeEvent) TradedAt() time.Time {
	var ts int64
	if _, err := fmt.Sscanf(e.Timestamp, "%d", &ts); err != nil || ts <= 0 {
		return time.Time{}
	}
	if ts > 1e12 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}

// Involves reports whether the given wallet address was on either side
// of the fill.
func (e *TradeEvent) Involves(address string) bool {
	return address != "" &&
		(equalFold(e.MakerAddress, address) || equalFold(e.TakerAddress, address))
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ConnectMarket dials the public market channel and subscribes to the
// provided asset IDs (token IDs). No API key required.
func (c *PolymarketEventsClient) ConnectMarket(
	ctx context.Context,
	assetIDs []string,
) error {
	c.connMu.Lock()
	alreadyConnected := c.conn != nil
	c.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.marketWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial market ws: %w", err)
	}

	c.logger.Info(
		"polymarket ws dialed",
		zap.String("url", c.marketWSURL),
		zap.Int("assets", len(assetIDs)),
	)

	conn.SetCloseHandler(func(code int, text string) error {
		c.logger.Warn(
			"polymarket ws close frame received",
			zap.Int("code", code),
			zap.String("reason", text),
		)
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// { "assets_ids": [...], "type": "market" }
	sub := map[string]any{
		"type":       "market",
		"assets_ids": assetIDs,
	}

	if err := c.writeJSON(sub); err != nil {
		_ = conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return fmt.Errorf("send initial subscription: %w", err)
	}

	c.logger.Info("polymarket ws subscription sent")

	go c.readLoop()
	go c.pingLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.closeCh:
		}
	}()

	return nil
}

// SubscribeAssets adds asset IDs to the live subscription.
func (c *PolymarketEventsClient) SubscribeAssets(assetIDs []string) error {
	return c.sendOp("subscribe", assetIDs)
}

// UnsubscribeAssets removes asset IDs from the live subscription.
func (c *PolymarketEventsClient) UnsubscribeAssets(assetIDs []string) error {
	return c.sendOp("unsubscribe", assetIDs)
}

// Trades returns the stream of parsed trade events. Non-trade frames
// on the channel are dropped before they reach here.
func (c *PolymarketEventsClient) Trades() <-chan TradeEvent {
	return c.tradeCh
}

func (c *PolymarketEventsClient) Errors() <-chan error {
	return c.errCh
}

type WSStats struct {
	MessageCount  uint64
	LastMessageAt time.Time
}

func (c *PolymarketEventsClient) Stats() WSStats {
	n := atomic.LoadUint64(&c.msgCount)
	ns := atomic.LoadInt64(&c.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	return WSStats{
		MessageCount:  n,
		LastMessageAt: t,
	}
}

func (c *PolymarketEventsClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}

	// Fresh channel so the client can reconnect.
	c.closeCh = make(chan struct{})

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	return err
}

func (c *PolymarketEventsClient) sendOp(operation string, assetIDs []string) error {
	msg := map[string]any{
		"operation":  operation,
		"assets_ids": assetIDs,
	}

	c.logger.Debug("polymarket ws op", zap.String("operation", operation), zap.Int("assets", len(assetIDs)))
	return c.writeJSON(msg)
}

func (c *PolymarketEventsClient) writeJSON(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(v)
}

func (c *PolymarketEventsClient) pingLoop() {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn != nil {
				c.writeMu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("PING"))
				c.writeMu.Unlock()
			}

		case <-c.closeCh:
			return
		}
	}
}

func (c *PolymarketEventsClient) readLoop() {
	c.logger.Info("polymarket ws read loop started")

	for {
		select {
		case <-c.closeCh:
			c.logger.Info("polymarket ws read loop exiting: closeCh signaled")
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("polymarket ws read loop exiting: read error", zap.Error(err))
			select {
			case c.errCh <- err:
			default:
			}
			_ = c.Close()
			return
		}

		// Server may reply with plain "PONG".
		if string(b) == "PONG" || string(b) == "PING" {
			continue
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		c.emitFrame(b)
	}
}

// emitFrame handles both frame shapes the server sends: a single JSON
// object event or a JSON array batch.
func (c *PolymarketEventsClient) emitFrame(b []byte) {
	trimmed := b
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\n' || trimmed[0] == '\t' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}

	if len(trimmed) == 0 {
		return
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			c.logger.Warn("polymarket ws bad json array frame", zap.Error(err))
			return
		}
		for _, one := range arr {
			c.forward(one)
		}
		return
	}

	c.forward(trimmed)
}

func (c *PolymarketEventsClient) forward(msg json.RawMessage) {
	var event TradeEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return
	}
	if event.EventType != "trade" && event.EventType != "last_trade_price" {
		return
	}

	select {
	case c.tradeCh <- event:
	default:
		c.logger.Warn("dropping ws trade event: tradeCh full")
	}
}
