package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"DriftWatch/internal/domain/models"
	drepo "DriftWatch/internal/domain/repository"
)

// WSClient implements a QuoteStream backed by an exchange WebSocket feed.
type WSClient struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected atomic.Bool
}

// NewWSClient creates a WebSocket-backed QuoteStream.
func NewWSClient(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration) drepo.QuoteStream {
	return &WSClient{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *WSClient) Connect(ctx context.Context) error {
	u := c.websocketURL
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("marketdata connect: %w", err)
	}
	c.conn = conn
	c.connected.Store(true)
	log.Printf("marketdata: connected")
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *WSClient) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("marketdata not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		log.Printf("marketdata: subscribed %s", s)
	}
	return nil
}

type wsTick struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsFrame struct {
	Type string   `json:"type"`
	Data []wsTick `json:"data"`
}

// Read streams Quote events and errors.
func (c *WSClient) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(quotes)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("marketdata conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("marketdata read: %w", err)
					return
				}
				var m wsFrame
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-tick frames
					continue
				}
				if m.Type != "trade" {
					continue
				}
				for _, d := range m.Data {
					q := &models.Quote{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: d.T}
					select {
					case quotes <- q:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return quotes, errs
}

// Reconnect closes and reconnects.
func (c *WSClient) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *WSClient) Close() error {
	c.connected.Store(false)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *WSClient) IsConnected() bool { return c.connected.Load() }
