package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

// DefaultSessionKeepAlive is how often an open connection touches its session.
const DefaultSessionKeepAlive = time.Minute

type WSHandler struct {
	service   *app.QuizService
	upgrader  websocket.Upgrader
	keepAlive time.Duration
}

// NewWSHandler builds the websocket handler. keepAlive defaults to DefaultSessionKeepAlive.
func NewWSHandler(service *app.QuizService, keepAlive time.Duration) *WSHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultSessionKeepAlive
	}
	return &WSHandler{
		service:   service,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPlayerPayload struct {
	PlayerID int64 `json:"playerId"`
}

type createPlayerPayload struct {
	Username string `json:"username"`
}

type selectCategoryPayload struct {
	CategoryID int64 `json:"categoryId"`
}

type guessPayload struct {
	Text string `json:"text"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsClient serializes writes to one connection.
type wsClient struct {
	send       chan outboundMessage
	done       <-chan struct{}
	writerDone chan struct{}
}

func (c *wsClient) emit(typ string, payload any) {
	select {
	case c.send <- outboundMessage{Type: typ, Payload: payload}:
	case <-c.done:
	case <-c.writerDone:
	}
}

// ServeWS upgrades HTTP requests to websockets. Each connection plays one quiz
// session, discarded when the connection closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := h.service.Start(ctx)
	sessionID := view.SessionID
	defer h.service.End(ctx, sessionID)
	log := slog.With("session_id", sessionID)
	log.Info("ws session started")

	client := &wsClient{
		send:       make(chan outboundMessage, 16),
		done:       ctx.Done(),
		writerDone: make(chan struct{}),
	}
	go func() {
		defer close(client.writerDone)
		for msg := range client.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "error", err)
				return
			}
		}
	}()

	// Round transitions wait on the question bank or the player store, so they
	// run off the read loop and a restart can overtake them.
	var pending sync.WaitGroup
	async := func(fn func()) {
		pending.Add(1)
		go func() {
			defer pending.Done()
			fn()
		}()
	}

	// A player may sit on a question for a long time; touching the session
	// keeps its liveness marker from expiring while the connection is open.
	async(func() {
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := h.service.View(ctx, sessionID); err != nil {
					log.Warn("ws keepalive failed", "error", err)
				}
			}
		}
	})

	h.sendPlayers(ctx, client, log)
	client.emit("session", view)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "selectPlayer":
			var payload selectPlayerPayload
			if !decode(inbound.Payload, &payload, client) {
				continue
			}
			v, err := h.service.SelectPlayer(ctx, sessionID, payload.PlayerID)
			if h.reply(client, log, v, err) {
				h.sendCategories(ctx, client, log)
			}
		case "createPlayer":
			var payload createPlayerPayload
			if !decode(inbound.Payload, &payload, client) {
				continue
			}
			if _, err := h.service.CreatePlayer(ctx, payload.Username); err != nil {
				h.fail(client, log, err)
				continue
			}
			h.sendPlayers(ctx, client, log)
		case "selectCategory":
			var payload selectCategoryPayload
			if !decode(inbound.Payload, &payload, client) {
				continue
			}
			async(func() {
				v, err := h.service.SelectCategory(ctx, sessionID, domain.ForCategory(payload.CategoryID))
				h.reply(client, log, v, err)
			})
		case "guess":
			var payload guessPayload
			if !decode(inbound.Payload, &payload, client) {
				continue
			}
			v, err := h.service.SubmitGuess(ctx, sessionID, payload.Text)
			h.reply(client, log, v, err)
		case "next":
			async(func() {
				v, err := h.service.RequestNext(ctx, sessionID)
				h.reply(client, log, v, err)
			})
		case "restart":
			v, err := h.service.Restart(ctx, sessionID)
			if h.reply(client, log, v, err) {
				h.sendPlayers(ctx, client, log)
			}
		default:
			client.emit("error", errorPayload{Code: "invalid_request", Message: "unsupported message type"})
		}
	}

	cancel()
	pending.Wait()
	close(client.send)
	<-client.writerDone
	log.Info("ws session closed")
}

// reply sends the session view after a successful action, or the error otherwise.
// It reports whether the action succeeded.
func (h *WSHandler) reply(c *wsClient, log *slog.Logger, v app.View, err error) bool {
	if err != nil {
		h.fail(c, log, err)
		return false
	}
	c.emit("session", v)
	return true
}

func (h *WSHandler) fail(c *wsClient, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrStaleResponse):
		log.Debug("dropped stale response", "error", err)
	case errors.Is(err, domain.ErrTransient):
		log.Warn("transient failure", "error", err)
		c.emit("notice", errorPayload{Code: "unavailable", Message: err.Error()})
	default:
		_, code := classify(err)
		if code == "internal" || code == "data_integrity" {
			log.Error("action failed", "error", err)
		}
		c.emit("error", errorPayload{Code: code, Message: err.Error()})
	}
}

func (h *WSHandler) sendPlayers(ctx context.Context, c *wsClient, log *slog.Logger) {
	players, err := h.service.Players(ctx)
	if err != nil {
		h.fail(c, log, domain.Transient("list players", err))
		return
	}
	c.emit("players", players)
}

func (h *WSHandler) sendCategories(ctx context.Context, c *wsClient, log *slog.Logger) {
	categories, err := h.service.Categories(ctx)
	if err != nil {
		h.fail(c, log, domain.Transient("list categories", err))
		return
	}
	c.emit("categories", categories)
}

func decode(raw json.RawMessage, v any, c *wsClient) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		c.emit("error", errorPayload{Code: "invalid_request", Message: "invalid payload"})
		return false
	}
	return true
}
