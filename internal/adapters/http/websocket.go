package http

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/corridor/internal/adapters/nats"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
)

// wsPingInterval keeps intermediaries from idling out quiet connections.
const wsPingInterval = 30 * time.Second

// wsMessage is the client's subscribe/unsubscribe request.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Key     string `json:"key"`     // entry key filter (optional, "" = all)
	Channel string `json:"channel"` // "updates" | "entries" | "analyses" (default: updates)
}

// wsSession relays NATS subjects to one WebSocket client. All writes go
// through send; the underlying connection allows one concurrent writer.
type wsSession struct {
	conn *websocket.Conn
	nc   *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// WebSocketHandler upgrades to WebSocket and relays live corridor events.
// Clients send JSON like {"action":"subscribe","channel":"entries","key":"sensor-17"};
// an empty key follows every entry. New connections start on the broadcast
// channel.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		s := &wsSession{
			conn: conn,
			nc:   nc,
			subs: make(map[string]*nats.Subscription),
		}

		remote := conn.RemoteAddr().String()
		log.Printf("ws client connected: %s", remote)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		if err := s.subscribe(natsadapter.BroadcastSubject); err != nil {
			log.Printf("ws default subscribe error: %v", err)
			return
		}
		defer s.teardown()

		stopPing := make(chan struct{})
		go s.pingLoop(stopPing)
		defer close(stopPing)

		s.readLoop()
		log.Printf("ws client disconnected: %s", remote)
	}
}

func (s *wsSession) readLoop() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var m wsMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			s.sendStatus(map[string]string{"error": "invalid JSON"})
			continue
		}
		s.handle(m)
	}
}

// subjectFor maps a channel request onto a NATS subject.
func subjectFor(m wsMessage) (string, bool) {
	channel := m.Channel
	if channel == "" {
		channel = "updates"
	}
	switch channel {
	case "updates":
		return natsadapter.BroadcastSubject, true
	case "entries":
		if m.Key != "" {
			return "corridor.entries." + m.Key, true
		}
		return "corridor.entries.>", true
	case "analyses":
		return "corridor.analysis.completed", true
	}
	return "", false
}

func (s *wsSession) handle(m wsMessage) {
	subject, ok := subjectFor(m)
	if !ok {
		s.sendStatus(map[string]string{"error": "unknown channel: " + m.Channel})
		return
	}

	switch m.Action {
	case "subscribe":
		if _, exists := s.subs[subject]; exists {
			s.sendStatus(map[string]string{"status": "already subscribed", "subject": subject})
			return
		}
		if err := s.subscribe(subject); err != nil {
			s.sendStatus(map[string]string{"error": "subscribe failed: " + err.Error()})
			return
		}
		s.sendStatus(map[string]string{"status": "subscribed", "subject": subject})

	case "unsubscribe":
		sub, exists := s.subs[subject]
		if !exists {
			s.sendStatus(map[string]string{"error": "not subscribed to " + subject})
			return
		}
		_ = sub.Unsubscribe()
		delete(s.subs, subject)
		s.sendStatus(map[string]string{"status": "unsubscribed", "subject": subject})

	default:
		s.sendStatus(map[string]string{"error": "unknown action: " + m.Action})
	}
}

// subscribe attaches a NATS subject to this session. Only the read loop
// touches s.subs; the NATS callback just forwards bytes.
func (s *wsSession) subscribe(subject string) error {
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		s.send(msg.Data)
	})
	if err != nil {
		return err
	}
	s.subs[subject] = sub
	return nil
}

func (s *wsSession) send(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSession) sendStatus(v map[string]string) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.send(data)
}

func (s *wsSession) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (s *wsSession) teardown() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}
