package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dropbeam/dropbeam/internal/hub"
	"github.com/dropbeam/dropbeam/internal/service"
)

const (
	sseHeartbeatInterval = 30 * time.Second
	wsWriteTimeout       = 10 * time.Second
	wsPingInterval       = 30 * time.Second
)

// EventsHandler exposes the notification hub over two long-lived
// transports: Server-Sent Events and WebSockets. Both validate the session
// before subscribing and unsubscribe when the client goes away.
type EventsHandler struct {
	events   *hub.Hub
	sessions *service.SessionService
	upgrader websocket.Upgrader
}

func NewEventsHandler(events *hub.Hub, sessions *service.SessionService) *EventsHandler {
	return &EventsHandler{
		events:   events,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Senders connect from QR-scanned devices on arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SSE streams session events as text/event-stream.
func (h *EventsHandler) SSE(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("session")
	if token == "" {
		respondBadRequest(w, "session query parameter required")
		return
	}

	_, err := h.sessions.Get(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.events.Subscribe(token)
	defer h.events.Unsubscribe(sub)

	slog.Info("sse client connected", "session", token)
	defer slog.Info("sse client disconnected", "session", token)

	writeSSE(w, hub.Envelope{
		Type:         hub.EventConnected,
		SessionToken: token,
		Timestamp:    time.Now(),
		Data:         hub.Connected{SessionToken: token},
	})
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			writeSSE(w, env)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, env hub.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("failed to marshal event", "error", err, "type", env.Type)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data)
}

// WebSocket streams session events over a socket connection.
func (h *EventsHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("session")
	if token == "" {
		respondBadRequest(w, "session query parameter required")
		return
	}

	_, err := h.sessions.Get(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "session", token)
		return
	}
	defer conn.Close()

	sub := h.events.Subscribe(token)
	defer h.events.Unsubscribe(sub)

	slog.Info("websocket client connected", "session", token)
	defer slog.Info("websocket client disconnected", "session", token)

	// Reader goroutine: subscribers never send application data, but
	// reading is required to notice the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	err = writeWS(conn, hub.Envelope{
		Type:         hub.EventConnected,
		SessionToken: token,
		Timestamp:    time.Now(),
		Data:         hub.Connected{SessionToken: token},
	})
	if err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			if err != nil {
				return
			}
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			err = writeWS(conn, env)
			if err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, env hub.Envelope) error {
	err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err != nil {
		return err
	}
	return conn.WriteJSON(env)
}
