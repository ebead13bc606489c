// Package pricefeed consumes quote batches from an external WebSocket
// price feed and hands them to the ledger. The feed pushes on its own
// cadence; this package never polls.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	readTimeout    = 90 * time.Second
)

// QuoteBatch maps symbol → last price for one feed frame.
type QuoteBatch map[string]decimal.Decimal

// frame is the wire format of one feed message.
type frame struct {
	Quotes map[string]decimal.Decimal `json:"quotes"`
}

// ParseFrame decodes a feed frame. Quotes with non-positive prices are
// dropped — the ledger only ever sees usable prices.
func ParseFrame(data []byte) (QuoteBatch, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("pricefeed: decode frame: %w", err)
	}
	if len(f.Quotes) == 0 {
		return nil, fmt.Errorf("pricefeed: frame has no quotes")
	}

	batch := make(QuoteBatch, len(f.Quotes))
	for sym, price := range f.Quotes {
		if price.LessThanOrEqual(decimal.Zero) {
			log.Printf("[pricefeed] dropping non-positive quote %s=%s", sym, price)
			continue
		}
		batch[sym] = price
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("pricefeed: frame has no valid quotes")
	}
	return batch, nil
}

// Ingest connects to the feed WebSocket and pushes parsed batches into
// a channel. Reconnects with exponential backoff on any error.
type Ingest struct {
	url string

	// Metrics hooks (optional, set externally).
	OnReconnect func()
	OnDropped   func()
	OnBatch     func()
}

// New creates an Ingest for the given ws:// or wss:// URL.
func New(url string) *Ingest {
	return &Ingest{url: url}
}

// Start connects and streams batches into batchCh until ctx is
// cancelled. When batchCh is full the batch is dropped — price sweeps
// are refreshing, not cumulative, so the next frame supersedes it.
func (ing *Ingest) Start(ctx context.Context, batchCh chan<- QuoteBatch) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.url, nil)
		if err != nil {
			log.Printf("[pricefeed] dial %s failed: %v (retry in %s)", ing.url, err, backoff)
			if ing.OnReconnect != nil {
				ing.OnReconnect()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		log.Printf("[pricefeed] connected to %s", ing.url)
		backoff = initialBackoff
		ing.readLoop(ctx, conn, batchCh)
		conn.Close()
	}
}

func (ing *Ingest) readLoop(ctx context.Context, conn *websocket.Conn, batchCh chan<- QuoteBatch) {
	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[pricefeed] read error: %v, reconnecting", err)
				if ing.OnReconnect != nil {
					ing.OnReconnect()
				}
			}
			return
		}

		batch, err := ParseFrame(data)
		if err != nil {
			log.Printf("[pricefeed] %v", err)
			continue
		}
		if ing.OnBatch != nil {
			ing.OnBatch()
		}

		select {
		case batchCh <- batch:
		default:
			log.Println("[pricefeed] batchCh full, dropping batch")
			if ing.OnDropped != nil {
				ing.OnDropped()
			}
		}
	}
}

// Run consumes batches from batchCh and applies each one. Blocks until
// ctx is cancelled or batchCh is closed.
func Run(ctx context.Context, batchCh <-chan QuoteBatch, apply func(QuoteBatch)) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batchCh:
			if !ok {
				return
			}
			apply(batch)
		}
	}
}
