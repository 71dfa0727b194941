package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	mw "github.com/amigo-montador/montador/internal/middleware"
	"github.com/amigo-montador/montador/internal/rating"
)

const (
	EventSnapshot           = "snapshot"
	EventObligationsChanged = "obligations_changed"
	EventRatingNeeded       = "rating_needed"
	EventRatingReceived     = "rating_received"

	writeWait = 5 * time.Second
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type obligationsPayload struct {
	PendingRatings    []rating.Obligation `json:"pendingRatings"`
	HasPendingRatings bool                `json:"hasPendingRatings"`
}

// client serialises writes; a websocket.Conn allows one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps the open sockets of every user and pushes rating events to
// them. It replaces polling for connected clients.
type Hub struct {
	resolver mw.ObligationResolver

	mu      sync.RWMutex
	clients map[int64]map[*client]bool
}

func NewHub(resolver mw.ObligationResolver) *Hub {
	return &Hub{resolver: resolver, clients: make(map[int64]map[*client]bool)}
}

func (h *Hub) register(userID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]bool)
	}
	h.clients[userID][c] = true
}

func (h *Hub) unregister(userID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[userID], c)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// Connected reports how many sockets userID has open.
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) sendTo(userID int64, evt wsEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.WithError(err).Error("encode ws event")
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(payload); err != nil {
			log.WithError(err).WithField("user_id", userID).Debug("ws write failed")
		}
	}
}

func (h *Hub) obligations(ctx context.Context, userID int64) (obligationsPayload, error) {
	pending, err := h.resolver.ResolvePendingObligations(ctx, userID)
	if err != nil {
		return obligationsPayload{}, err
	}
	for i := range pending {
		pending[i].Trigger = rating.TriggerPush
	}
	if pending == nil {
		pending = []rating.Obligation{}
	}
	return obligationsPayload{PendingRatings: pending, HasPendingRatings: len(pending) > 0}, nil
}

// Dispatch implements rating.Dispatcher.
func (h *Hub) Dispatch(ctx context.Context, event rating.Event) error {
	switch e := event.(type) {
	case rating.ObligationsChanged:
		if h.Connected(e.UserID) == 0 {
			return nil
		}
		p, err := h.obligations(ctx, e.UserID)
		if err != nil {
			return err
		}
		h.sendTo(e.UserID, wsEvent{Type: EventObligationsChanged, Data: p})
	case rating.RatingNeeded:
		h.sendTo(e.UserID, wsEvent{Type: EventRatingNeeded, Data: echo.Map{
			"serviceId":     e.ServiceID,
			"serviceName":   e.ServiceTitle,
			"otherUserName": e.CounterpartName,
			"trigger":       rating.TriggerPush,
		}})
	case rating.RatingSubmitted:
		h.sendTo(e.ToUserID, wsEvent{Type: EventRatingReceived, Data: echo.Map{
			"serviceId": e.ServiceID,
			"rating":    e.Score,
			"fromRole":  e.FromRole,
		}})
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler - websocket for realtime rating updates of the caller
func (h *Hub) Handler(c echo.Context) error {
	userID, ok := mw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cl := &client{conn: ws}
	h.register(userID, cl)

	// Snapshot so the client does not have to poll right after connecting.
	if p, err := h.obligations(c.Request().Context(), userID); err == nil {
		if payload, err := json.Marshal(wsEvent{Type: EventSnapshot, Data: p}); err == nil {
			_ = cl.send(payload)
		}
	} else {
		log.WithError(err).WithField("user_id", userID).Warn("ws snapshot failed")
	}

	// Read loop (discard client messages; protocol is server push)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(userID, cl)
			_ = ws.Close()
			break
		}
	}
	return nil
}
