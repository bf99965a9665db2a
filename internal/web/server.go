// Package web provides the HTTP status page, a JSON endpoint and a
// websocket stream of live snapshots.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/thermostat/internal/state"
)

// Source supplies the current control state. *state.ControlState satisfies it.
type Source interface {
	Snapshot() state.Snapshot
}

// Info describes the running daemon for the status page.
type Info struct {
	StartTime        time.Time
	PollInterval     time.Duration
	EvaluateInterval time.Duration
	LowThreshold     float64
	HighThreshold    float64
	Sensor           string
	Relay            string
	Occupancy        string
	Broker           string // empty when MQTT is not used
}

// Options configures a Server.
type Options struct {
	Info Info
	// Connected reports the broker connection; nil when MQTT is not used.
	Connected func() bool
	// Buffered reports publishes held for the broker while offline. Optional.
	Buffered func() int
	// Network is shown when set; see NetworkFromEnv.
	Network *NetworkInfo
	// Hub, if set, is served on /ws.
	Hub *Hub
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	source     Source
	opts       Options
}

// New creates a Server that reads state from source.
func New(addr string, source Source, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{source: source, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if opts.Hub != nil {
		mux.Handle("/ws", opts.Hub)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.Hub != nil {
		s.opts.Hub.CloseAll()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) status() statusView {
	v := statusView{
		Snapshot: s.source.Snapshot(),
		Info:     s.opts.Info,
		Network:  s.opts.Network,
		Now:      s.opts.Now(),
	}
	if s.opts.Connected != nil {
		v.MQTTUsed = true
		v.MQTTConnected = s.opts.Connected()
		if s.opts.Buffered != nil {
			v.MQTTBuffered = s.opts.Buffered()
		}
	}
	return v
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.status(), s.opts.Hub != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatJSON(s.status()))
}
