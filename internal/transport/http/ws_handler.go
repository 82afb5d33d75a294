package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"nikkei-quiz-service/internal/app"
	"nikkei-quiz-service/internal/domain"
)

// WSHandler streams live statistics of the caller's identity.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type statsPayload struct {
	domain.Stats
	Accuracy float64 `json:"accuracy"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func statsMessage(stats domain.Stats) outboundMessage[any] {
	return outboundMessage[any]{Type: "stats", Payload: statsPayload{Stats: stats, Accuracy: stats.Accuracy()}}
}

// ServeWS upgrades the request and pushes a stats message after every recorded answer.
// Clients may send {"type":"history"} to receive their recent attempts.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	updates, cancel, err := h.service.Subscribe(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[WS] write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- statsMessage(update):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "history":
			history, err := h.service.History(r.Context(), identity, 0)
			if err != nil {
				reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "history unavailable"}}
				break
			}
			reply = outboundMessage[any]{Type: "history", Payload: history}
		default:
			reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
