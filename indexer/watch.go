package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/nel349/midnight-ledger-reader/events"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/types"
)

// Watcher subscribes to the indexer's websocket state-update feed and
// republishes updates on the event bus. Readers subscribe to the bus to
// invalidate their cached snapshots.
type Watcher struct {
	url string
	bus *events.Bus
	log *logging.Logger
}

// NewWatcher creates a watcher for the given websocket URL.
func NewWatcher(url string, bus *events.Bus, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Watcher{
		url: url,
		bus: bus,
		log: log.WithComponent("indexer.watch"),
	}
}

// wireUpdate is the feed's notification payload.
type wireUpdate struct {
	Address     string `json:"address"`
	BlockHeight uint64 `json:"blockHeight"`
}

// subscribeRequest covers all contracts the feed is scoped to.
type subscribeRequest struct {
	Subscribe string `json:"subscribe"`
}

// Run connects and pumps updates until ctx is cancelled or the
// connection fails. Callers own reconnect policy.
func (w *Watcher) Run(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, w.url)
	if err != nil {
		return fmt.Errorf("dialing state feed: %w", err)
	}
	defer conn.Close()

	req, err := json.Marshal(subscribeRequest{Subscribe: "contract_state"})
	if err != nil {
		return fmt.Errorf("encoding subscription: %w", err)
	}
	if err := wsutil.WriteClientMessage(conn, ws.OpText, req); err != nil {
		return fmt.Errorf("subscribing to state feed: %w", err)
	}

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	w.log.Info("state feed connected")

	for {
		data, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return ctx.Err()
			}
			return fmt.Errorf("reading state feed: %w", err)
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		var wu wireUpdate
		if err := json.Unmarshal(data, &wu); err != nil {
			w.log.Warn("ignoring malformed feed message", logging.Error(err))
			continue
		}

		update := types.StateUpdate{
			Address:     types.ContractAddress(wu.Address),
			BlockHeight: wu.BlockHeight,
		}
		if err := w.bus.Publish(update); err != nil {
			return fmt.Errorf("publishing state update: %w", err)
		}
		w.log.Debug("state update",
			logging.Contract(wu.Address),
			logging.Height(wu.BlockHeight))
	}
}
