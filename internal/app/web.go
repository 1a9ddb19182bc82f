package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/stroke_classifier/internal/config"
	"github.com/relabs-tech/stroke_classifier/internal/journal"
	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
)

// recentStrokes is how many stroke events the dashboard keeps in memory.
const recentStrokes = 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsMessage is the websocket envelope: {"type": ..., "data": ...}.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsClient is one dashboard connection with its own outbound queue.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// dashboard holds the latest counters and strokes and fans updates out to
// websocket clients. MQTT callbacks and HTTP handlers share it.
type dashboard struct {
	mu           sync.RWMutex
	counters     pipeline.Snapshot
	haveCounters bool
	strokes      []StrokeEvent // newest last
	clients      map[*wsClient]struct{}
	sendBuf      int
}

func newDashboard() *dashboard {
	return &dashboard{clients: make(map[*wsClient]struct{}), sendBuf: 32}
}

func (d *dashboard) setCounters(snap pipeline.Snapshot) {
	d.mu.Lock()
	d.counters = snap
	d.haveCounters = true
	slow := d.fanOut(wsMessage{Type: "counters", Data: snap})
	d.mu.Unlock()
	d.drop(slow)
}

func (d *dashboard) addStroke(ev StrokeEvent) {
	d.mu.Lock()
	d.strokes = append(d.strokes, ev)
	if len(d.strokes) > recentStrokes {
		d.strokes = d.strokes[len(d.strokes)-recentStrokes:]
	}
	slow := d.fanOut(wsMessage{Type: "stroke", Data: ev})
	d.mu.Unlock()
	d.drop(slow)
}

// join registers c and returns the init message it starts from. State
// changes fan out under the same lock, so every update reaches c exactly
// once: in the snapshot or on its queue.
func (d *dashboard) join(c *wsClient) (wsMessage, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c] = struct{}{}
	strokes := append([]StrokeEvent(nil), d.strokes...)
	first := wsMessage{Type: "init", Data: map[string]any{
		"counters": d.counters,
		"strokes":  strokes,
	}}
	return first, len(d.clients)
}

func (d *dashboard) unregister(c *wsClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.clients[c]; ok {
		delete(d.clients, c)
		close(c.send)
	}
}

// fanOut queues msg for every client and returns those whose queue is
// full. Callers hold d.mu.
func (d *dashboard) fanOut(msg wsMessage) []*wsClient {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("web: marshal %s: %v", msg.Type, err)
		return nil
	}
	var slow []*wsClient
	for c := range d.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}

// drop disconnects slow clients.
func (d *dashboard) drop(slow []*wsClient) {
	for _, c := range slow {
		log.Printf("web: dropping slow websocket client")
		d.unregister(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// serveWS upgrades the request, sends the current state, then forwards
// broadcasts until the client goes away.
func (d *dashboard) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, d.sendBuf)}
	first, n := d.join(c)
	if err := conn.WriteJSON(first); err != nil {
		d.unregister(c)
		conn.Close()
		return
	}
	log.Printf("web: websocket client %s connected (%d clients)", r.RemoteAddr, n)

	// Reader: only detects the close; the dashboard never reads commands.
	go func() {
		defer d.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	for payload := range c.send {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			d.unregister(c)
			return
		}
	}
}

func (d *dashboard) serveCounters(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.haveCounters {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.counters); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (d *dashboard) serveStrokes(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	strokes := append([]StrokeEvent{}, d.strokes...)
	d.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(strokes); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// historyHandler serves journal totals and the latest strokes.
func historyHandler(j *journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		totals, err := j.Totals(r.Context(), 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		recent, err := j.Recent(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"totals": totals, "recent": recent}); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	}
}

func (d *dashboard) routes(j *journal.Journal, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.serveWS)
	mux.HandleFunc("/api/counters", d.serveCounters)
	mux.HandleFunc("/api/strokes", d.serveStrokes)
	if j != nil {
		mux.HandleFunc("/api/history", historyHandler(j))
	}
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb serves the live dashboard until ctx is cancelled.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()
	d := newDashboard()

	client, err := connectMQTT("web", cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	err = subscribe(client, "web", cfg.TopicCounters, func(_ mqtt.Client, msg mqtt.Message) {
		var snap pipeline.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Printf("web: counters unmarshal error: %v", err)
			return
		}
		d.setCounters(snap)
	})
	if err != nil {
		return err
	}

	err = subscribe(client, "web", cfg.TopicStrokes, func(_ mqtt.Client, msg mqtt.Message) {
		var ev StrokeEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("web: stroke unmarshal error: %v", err)
			return
		}
		d.addStroke(ev)
	})
	if err != nil {
		return err
	}

	var j *journal.Journal
	if cfg.JournalPath != "" {
		if j, err = journal.Open(cfg.JournalPath); err != nil {
			return err
		}
		defer j.Close()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: d.routes(j, "web"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("web: server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("web: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
