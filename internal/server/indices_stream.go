package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/marketdash/internal/modules/quotes"
)

const (
	defaultStreamInterval = 2 * time.Second
	streamWriteTimeout    = 5 * time.Second
)

// IndicesSource produces the indices overview pushed to stream clients.
type IndicesSource interface {
	Indices(ctx context.Context) quotes.IndicesOverview
}

// IndicesStreamHandler pushes the indices overview over a websocket at a
// fixed interval, replacing client-side polling of /api/indices.
type IndicesStreamHandler struct {
	source   IndicesSource
	interval time.Duration
	log      zerolog.Logger
}

// NewIndicesStreamHandler creates a new indices stream handler.
func NewIndicesStreamHandler(source IndicesSource, interval time.Duration, log zerolog.Logger) *IndicesStreamHandler {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	return &IndicesStreamHandler{
		source:   source,
		interval: interval,
		log:      log.With().Str("component", "indices_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/indices/stream requests (websocket).
func (h *IndicesStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The dashboard may be served from any origin
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Clients never send data; CloseRead handles control frames and
	// cancels ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Str("remote", r.RemoteAddr).Msg("Client connected to indices stream")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.push(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
				h.log.Info().Msg("Client disconnected from indices stream")
			} else {
				h.log.Warn().Err(err).Msg("Failed to push indices update")
			}
			return
		}

		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from indices stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}

func (h *IndicesStreamHandler) push(ctx context.Context, conn *websocket.Conn) error {
	overview := h.source.Indices(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()

	return wsjson.Write(writeCtx, conn, overview)
}
