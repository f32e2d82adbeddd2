package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
	"creatorguard/internal/usecase/jobworker"
	"creatorguard/internal/usecase/moderation"
)

const streamWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type streamFrame struct {
	Type       string                `json:"type"`
	Moderation moderation.Stats      `json:"moderation"`
	Queue      *jobworker.QueueStats `json:"queue,omitempty"`
	SentAt     string                `json:"sent_at"`
}

// stream pushes moderation and queue stats to an admin dashboard until the
// client goes away.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(r.Context(), "websocket upgrade failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only serve to notice the client closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	worker, err := h.newWorker("")
	if err != nil {
		logging.Error(ctx, "stream worker unavailable", slog.Any("err", errs.Loggable(err)))
		return
	}

	ticker := time.NewTicker(h.opts.StreamInterval)
	defer ticker.Stop()
	for {
		if err := h.pushStats(ctx, conn, worker); err != nil {
			if ctx.Err() == nil {
				logging.Warn(ctx, "stream push failed", slog.Any("err", errs.Loggable(err)))
			}
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

func (h *handler) pushStats(ctx context.Context, conn *websocket.Conn, worker QueueWorker) error {
	stats, err := h.svc.GetModerationStats(ctx)
	if err != nil {
		return err
	}
	frame := streamFrame{Type: "stats", Moderation: stats, SentAt: stats.GeneratedAt}
	if queue, err := worker.GetQueueStats(ctx); err == nil {
		frame.Queue = &queue
	}

	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return errs.Wrap(err, "set write deadline")
	}
	if err := conn.WriteJSON(frame); err != nil {
		return errs.Wrap(err, "write stats frame")
	}
	return nil
}
