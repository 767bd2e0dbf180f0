// Package monitor serves the progress of a training run over HTTP. GET /stats
// returns every record so far as JSON and GET /ws streams each new record to
// websocket clients as it is produced.
package monitor

import "context"
import "encoding/json"
import "net/http"
import "sync"
import "time"

import "github.com/gorilla/mux"
import "github.com/gorilla/websocket"
import "github.com/pkg/errors"
import "github.com/sirupsen/logrus"

import "github.com/junosan/char-lm/trainer"

// Message is the websocket payload. Exactly one of Epoch and Final is set.
type Message struct {
	Type  string               `json:"type"`
	Epoch *trainer.EpochRecord `json:"epoch,omitempty"`
	Final *trainer.FinalRecord `json:"final,omitempty"`
}

// Stats is the body of GET /stats.
type Stats struct {
	RunID  string                `json:"run_id"`
	Epochs []trainer.EpochRecord `json:"epochs"`
	Final  *trainer.FinalRecord  `json:"final,omitempty"`
}

// sendBuffer is the number of messages queued per client before new ones
// are dropped for it.
const sendBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Monitor is a trainer.Observer that never blocks the training loop on slow
// clients.
type Monitor struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	stats   Stats
	history [][]byte
	clients map[*client]struct{}
}

func New(runID string, log logrus.FieldLogger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		stats:   Stats{RunID: runID, Epochs: []trainer.EpochRecord{}},
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the router serving /stats and /ws.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/stats", m.Stats()).Methods("GET")
	r.HandleFunc("/ws", m.Websocket())
	return r
}

// ListenAndServe serves Handler on addr until ctx is done.
func (m *Monitor) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
		m.closeClients()
	}()
	m.log.WithField("addr", addr).Info("monitor listening")
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.Wrap(err, "monitor")
}

// Stats is the handler function for GET /stats.
func (m *Monitor) Stats() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		body, err := json.Marshal(m.stats)
		m.mu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

// Websocket is the handler function for GET /ws. A new client first receives
// every message sent so far.
func (m *Monitor) Websocket() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

		m.mu.Lock()
		backlog := append([][]byte(nil), m.history...)
		m.clients[c] = struct{}{}
		m.mu.Unlock()

		go m.writer(c, backlog)
		// discard input, detect close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		m.drop(c)
	}
}

func (m *Monitor) writer(c *client, backlog [][]byte) {
	defer c.conn.Close()
	for _, msg := range backlog {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			m.drop(c)
			return
		}
	}
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			m.log.WithError(err).Debug("websocket write failed")
			m.drop(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drop unregisters c and ends its writer.
func (m *Monitor) drop(c *client) {
	m.mu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	m.mu.Unlock()
	if ok {
		close(c.send)
	}
}

func (m *Monitor) closeClients() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[*client]struct{})
	m.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
}

// broadcast must be called with mu held.
func (m *Monitor) broadcast(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encoding monitor message")
	}
	m.history = append(m.history, body)
	for c := range m.clients {
		select {
		case c.send <- body:
		default:
			m.log.Debug("monitor client too slow, message dropped")
		}
	}
	return nil
}

func (m *Monitor) ObserveEpoch(r trainer.EpochRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Epochs = append(m.stats.Epochs, r)
	return m.broadcast(Message{Type: "epoch", Epoch: &r})
}

func (m *Monitor) ObserveFinal(r trainer.FinalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Final = &r
	return m.broadcast(Message{Type: "final", Final: &r})
}
