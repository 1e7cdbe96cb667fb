package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Client streams futures market data over the Binance combined WebSocket:
// aggTrade, bookTicker, markPrice (funding), and forceOrder (liquidations)
// per configured symbol, normalized into models.MarketEvent.
type Client struct {
	baseURL      string
	symbols      []string
	pingInterval time.Duration
	maxBackoff   time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	attempts  int

	log *logger.Logger
}

// New creates a Binance MarketStream for the given symbols.
func New(baseURL string, symbols []string, pingInterval, maxBackoff time.Duration, log *logger.Logger) drepo.MarketStream {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return &Client{
		baseURL:      baseURL,
		symbols:      symbols,
		pingInterval: pingInterval,
		maxBackoff:   maxBackoff,
		log:          log,
	}
}

// Connect dials the combined stream endpoint with every per-symbol stream in
// the path, so no separate subscribe round-trip is needed.
func (c *Client) Connect(ctx context.Context) error {
	streams := make([]string, 0, len(c.symbols)*4)
	for _, s := range c.symbols {
		lower := strings.ToLower(s)
		streams = append(streams,
			lower+"@aggTrade",
			lower+"@bookTicker",
			lower+"@markPrice@1s",
			lower+"@forceOrder")
	}
	u := fmt.Sprintf("%s/stream?streams=%s", c.baseURL, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.attempts = 0
	c.mu.Unlock()

	if c.log != nil {
		c.log.Info("binance stream connected", logger.Int("symbols", len(c.symbols)))
	}
	return nil
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type aggTrade struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	TimeMS int64  `json:"T"`
}

type bookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type markPrice struct {
	Symbol      string `json:"s"`
	FundingRate string `json:"r"`
	TimeMS      int64  `json:"E"`
}

type forceOrder struct {
	Order struct {
		Symbol  string `json:"s"`
		Price   string `json:"p"`
		Qty     string `json:"q"`
		TradeMS int64  `json:"T"`
		Side    string `json:"S"`
	} `json:"o"`
}

// Read streams normalized events and errors. The read loop exits on the
// first read error; the caller drives Reconnect.
func (c *Client) Read(ctx context.Context) (<-chan models.MarketEvent, <-chan error) {
	events := make(chan models.MarketEvent, 4096)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(events)
		defer close(errs)
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				errs <- fmt.Errorf("binance conn nil")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("binance read: %w", err)
				return
			}

			ev, ok := parseFrame(b)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			default:
				// drop on backpressure, the extractor only needs recency
			}
		}
	}()

	return events, errs
}

func parseFrame(b []byte) (models.MarketEvent, bool) {
	var frame combinedFrame
	if err := json.Unmarshal(b, &frame); err != nil || frame.Stream == "" {
		return models.MarketEvent{}, false
	}

	switch {
	case strings.Contains(frame.Stream, "@aggTrade"):
		var t aggTrade
		if err := json.Unmarshal(frame.Data, &t); err != nil {
			return models.MarketEvent{}, false
		}
		return models.MarketEvent{
			Kind:      models.EventTrade,
			Symbol:    t.Symbol,
			Timestamp: time.UnixMilli(t.TimeMS),
			Price:     parseFloat(t.Price),
			Qty:       parseFloat(t.Qty),
		}, true

	case strings.Contains(frame.Stream, "@bookTicker"):
		var bt bookTicker
		if err := json.Unmarshal(frame.Data, &bt); err != nil {
			return models.MarketEvent{}, false
		}
		return models.MarketEvent{
			Kind:      models.EventBook,
			Symbol:    bt.Symbol,
			Timestamp: time.Now(),
			BidPrice:  parseFloat(bt.BidPrice),
			BidQty:    parseFloat(bt.BidQty),
			AskPrice:  parseFloat(bt.AskPrice),
			AskQty:    parseFloat(bt.AskQty),
		}, true

	case strings.Contains(frame.Stream, "@markPrice"):
		var mp markPrice
		if err := json.Unmarshal(frame.Data, &mp); err != nil {
			return models.MarketEvent{}, false
		}
		return models.MarketEvent{
			Kind:        models.EventFunding,
			Symbol:      mp.Symbol,
			Timestamp:   time.UnixMilli(mp.TimeMS),
			FundingRate: parseFloat(mp.FundingRate),
		}, true

	case strings.Contains(frame.Stream, "@forceOrder"):
		var fo forceOrder
		if err := json.Unmarshal(frame.Data, &fo); err != nil {
			return models.MarketEvent{}, false
		}
		return models.MarketEvent{
			Kind:      models.EventLiquidation,
			Symbol:    fo.Order.Symbol,
			Timestamp: time.UnixMilli(fo.Order.TradeMS),
			Price:     parseFloat(fo.Order.Price),
			Qty:       parseFloat(fo.Order.Qty),
		}, true
	}
	return models.MarketEvent{}, false
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Reconnect closes the current connection and redials with exponential
// backoff and jitter, capped at maxBackoff.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()

	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	delay := backoffFor(attempt, c.maxBackoff)
	delay += time.Duration(rand.Int63n(int64(250 * time.Millisecond)))

	if c.log != nil {
		c.log.Warn("binance reconnecting",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}
	return c.Connect(ctx)
}

// backoffFor is the capped exponential reconnect delay. The shift is bounded
// so long outages cannot overflow the duration into a negative value.
func backoffFor(attempt int, max time.Duration) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 20 {
		shift = 20
	}
	d := time.Duration(1<<uint(shift)) * time.Second
	if d > max {
		d = max
	}
	return d
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected reports connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
