// Package monitor streams transmitted frames and diagnostics to WebSocket
// clients and accepts live control messages.
package monitor

import (
	"encoding/json"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/ledrmt/drawtarget"
	"github.com/coreman2200/ledrmt/ledcolor"
)

// Control is a live change requested by a client.
type Control struct {
	Brightness *int   `json:"brightness,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
}

type Monitor struct {
	// Driver names the active output in topology and health reports.
	Driver string

	log    zerolog.Logger
	size   image.Point
	layout ledcolor.Layout
	up     websocket.Upgrader

	mu          sync.Mutex
	frameID     uint64
	currentA    float64
	startTime   time.Time
	clients     map[*websocket.Conn]*client
	diagClients map[*websocket.Conn]*client
	controls    chan Control
}

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func New(size image.Point, layout ledcolor.Layout, log zerolog.Logger) *Monitor {
	return &Monitor{
		log:         log,
		size:        size,
		layout:      layout,
		up:          websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		startTime:   time.Now(),
		clients:     map[*websocket.Conn]*client{},
		diagClients: map[*websocket.Conn]*client{},
		controls:    make(chan Control, 8),
	}
}

// Controls delivers control messages received on /control.
func (m *Monitor) Controls() <-chan Control {
	return m.controls
}

// Handler serves /ws (frames), /diag, /control and /health.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.HandleFramesWS)
	mux.HandleFunc("/diag", m.HandleDiagWS)
	mux.HandleFunc("/control", m.HandleControlWS)
	mux.HandleFunc("/health", m.HandleHealth)
	return withCORS(mux)
}

// Publish broadcasts a device-ordered frame to the frame clients in
// logical RGB order.
func (m *Monitor) Publish(frame []byte) {
	rgb := make([]byte, 0, len(frame)/max(1, m.layout.BPP)*3)
	sum := 0
	for _, c := range m.layout.Pixels(frame) {
		rgb = append(rgb, c.R(), c.G(), c.B())
		sum += int(c.R()) + int(c.G()) + int(c.B()) + int(c.W())
	}
	m.mu.Lock()
	m.frameID++
	id := m.frameID
	m.currentA = estimateCurrent(sum)
	clients := snapshot(m.clients)
	m.mu.Unlock()
	type msg struct {
		T       int64  `json:"t"`
		FrameID uint64 `json:"frame_id"`
		RGB     []byte `json:"rgb"`
	}
	b, _ := json.Marshal(msg{T: time.Now().UnixNano(), FrameID: id, RGB: rgb})
	m.broadcast(clients, b)
}

// Diagnose pushes d to the diagnostic clients.
func (m *Monitor) Diagnose(d Diagnostic) {
	b, _ := json.Marshal(d)
	m.mu.Lock()
	clients := snapshot(m.diagClients)
	m.mu.Unlock()
	m.broadcast(clients, b)
}

// snapshot must be called with m.mu held.
func snapshot(clients map[*websocket.Conn]*client) []*client {
	out := make([]*client, 0, len(clients))
	for _, c := range clients {
		out = append(out, c)
	}
	return out
}

func (m *Monitor) broadcast(clients []*client, b []byte) {
	for _, c := range clients {
		if err := c.write(b); err != nil {
			m.log.Debug().Err(err).Msg("write message")
		}
	}
}

func (m *Monitor) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	// Hold the write lock until the topology is out so frames follow it.
	c.mu.Lock()
	m.mu.Lock()
	m.clients[conn] = c
	m.mu.Unlock()
	m.sendTopology(conn)
	c.mu.Unlock()
	go m.drain(conn, m.clients)
}

func (m *Monitor) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.diagClients[conn] = &client{conn: conn}
	m.mu.Unlock()
	go m.drain(conn, m.diagClients)
}

// drain reads until the client goes away, then forgets it.
func (m *Monitor) drain(conn *websocket.Conn, clients map[*websocket.Conn]*client) {
	defer func() {
		m.mu.Lock()
		delete(clients, conn)
		m.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *Monitor) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var c Control
		if err := json.Unmarshal(data, &c); err != nil {
			m.log.Debug().Err(err).Msg("bad control message")
			continue
		}
		select {
		case m.controls <- c:
		default:
			m.log.Warn().Msg("control queue full; dropping message")
		}
		m.sendTopology(conn)
	}
}

func (m *Monitor) HandleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	resp := map[string]any{
		"frame_id":  m.frameID,
		"uptime_s":  time.Since(m.startTime).Seconds(),
		"width":     m.size.X,
		"height":    m.size.Y,
		"layout":    m.layout.String(),
		"driver":    m.Driver,
		"current_a": m.currentA,
	}
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// sendTopology writes the layout description to conn. The caller must be
// the only writer on conn.
func (m *Monitor) sendTopology(conn *websocket.Conn) {
	top := map[string]any{
		"width":  m.size.X,
		"height": m.size.Y,
		"layout": m.layout.String(),
		"driver": m.Driver,
	}
	b, _ := json.Marshal(top)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// Tee forwards frames to W and publishes the ones that were written.
type Tee struct {
	W drawtarget.Writer
	M *Monitor
}

// WriteBlocking implements drawtarget.Writer.
func (t Tee) WriteBlocking(data []byte) error {
	if err := t.W.WriteBlocking(data); err != nil {
		t.M.Diagnose(TransmitFailure(err, len(data)))
		return err
	}
	t.M.Publish(data)
	return nil
}

// Close closes W when it is an io.Closer.
func (t Tee) Close() error {
	if c, ok := t.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// estimateCurrent returns estimated amps for the summed channel values of a
// frame (20mA/chan full-scale).
func estimateCurrent(sum int) float64 {
	return float64(sum) / 255.0 * 0.020
}
