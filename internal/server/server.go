// Package server exposes a storage.Backend to remote clients over WebSocket
// and serves read-only HTTP views of the current locations.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doggo-app/locshare/internal/dispatcher"
	"github.com/doggo-app/locshare/internal/geo"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/core"
	"github.com/doggo-app/locshare/pkg/streaming"
	ws "github.com/gorilla/websocket"
	geom "github.com/peterstace/simplefeatures/geom"
)

const (
	cmdRecord           = "record"
	recordBufferSize    = 1000
	defaultHistoryLimit = 500
)

var errBadRequest = errors.New("bad request")

// Sink receives every accepted write.
type Sink interface {
	WriteLocation(ctx context.Context, key string, rec core.LocationRecord, t time.Time) error
}

// Options configures a Server.
type Options struct {
	// Secret must match the "secret" query parameter of /ws and /api when set.
	Secret string
	Logger *slog.Logger
	Sink   Sink
}

// Server routes store requests from WebSocket clients through a dispatcher.
type Server struct {
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher
	opts       Options
	logger     *slog.Logger
	upgrader   ws.Upgrader

	nextClient atomic.Uint64
	mu         sync.Mutex
	clients    map[string]*client
	closed     bool
}

// New creates a server over backend. Call RegisterHandlers before serving.
func New(backend storage.Backend, d *dispatcher.Dispatcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend:    backend,
		dispatcher: d,
		opts:       opts,
		logger:     logger,
		upgrader:   ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:    make(map[string]*client),
	}
}

// RegisterHandlers registers the store commands with the dispatcher.
func (s *Server) RegisterHandlers() {
	s.dispatcher.Register(streaming.TypeSet, s.handleSet, dispatcher.Logged())
	s.dispatcher.Register(streaming.TypeDelete, s.handleDelete, dispatcher.Logged())
	s.dispatcher.Register(streaming.TypeGet, s.handleGet)
	s.dispatcher.Register(streaming.TypeChildren, s.handleChildren)
	s.dispatcher.Register(streaming.TypeSubscribe, s.handleSubscribe, dispatcher.Logged())
	s.dispatcher.Register(streaming.TypeUnsubscribe, s.handleUnsubscribe, dispatcher.Logged())

	if s.opts.Sink != nil {
		s.dispatcher.Register(cmdRecord, s.handleRecord, dispatcher.Buffered(recordBufferSize))
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /healthcheck", s.serveHealthcheck)
	mux.HandleFunc("GET /api/v1/locations", s.requireSecret(s.serveLocations))
	mux.HandleFunc("GET /api/v1/history", s.requireSecret(s.serveHistory))
	return mux
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := s.clients
	s.clients = make(map[string]*client)
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) authorized(r *http.Request) bool {
	return s.opts.Secret == "" || r.URL.Query().Get("secret") == s.opts.Secret
}

func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	id := "c" + strconv.FormatUint(s.nextClient.Add(1), 10)
	c := newClient(id, conn, s.logger.With("client", id))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.close()
		return
	}
	s.clients[id] = c
	s.mu.Unlock()

	s.logger.Info("Client connected", "client", id, "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop(s.handle)

	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	c.close()

	s.logger.Info("Client disconnected", "client", id)
}

// handle runs one request on the client's read goroutine and queues its ack.
func (s *Server) handle(c *client, env streaming.Envelope) {
	ack := streaming.AckMessage{Type: streaming.TypeAck, For: env.Type, ID: env.ID}

	if env.Type == cmdRecord || !s.dispatcher.HasHandler(env.Type) {
		ack.Error = fmt.Sprintf("unknown message type %q", env.Type)
		ack.Code = streaming.CodeBadRequest
		c.sendJSON(ack)
		return
	}

	result, err := s.dispatcher.Dispatch(dispatcher.Event{
		Command:   env.Type,
		RequestID: env.ID,
		Payload:   env.Payload,
		Sender:    c.id,
	})
	if err != nil {
		ack.Error = err.Error()
		ack.Code = codeFor(err)
	} else if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			ack.Error = err.Error()
			ack.Code = streaming.CodeInternal
		} else {
			ack.Payload = raw
		}
	}
	c.sendJSON(ack)
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return streaming.CodeNotFound
	case errors.Is(err, storage.ErrClosed):
		return streaming.CodeClosed
	case errors.Is(err, errBadRequest):
		return streaming.CodeBadRequest
	default:
		return streaming.CodeInternal
	}
}

func (s *Server) client(id string) (*client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

// contextFor scopes a request to its connection. Local callers get a
// background context.
func (s *Server) contextFor(e dispatcher.Event) context.Context {
	if c, ok := s.client(e.Sender); ok {
		return c.ctx
	}
	return context.Background()
}

func decode[T any](e dispatcher.Event) (T, error) {
	var v T
	if len(e.Payload) == 0 {
		return v, fmt.Errorf("%w: %s needs a payload", errBadRequest, e.Command)
	}
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s payload: %v", errBadRequest, e.Command, err)
	}
	return v, nil
}

func (s *Server) handleSet(e dispatcher.Event) (any, error) {
	p, err := decode[streaming.SetPayload](e)
	if err != nil {
		return nil, err
	}
	if p.Key == "" || !p.Record.Valid() {
		return nil, fmt.Errorf("%w: set needs a key and a record id", errBadRequest)
	}
	if !geo.ValidLatLon(p.Record.Latitude, p.Record.Longitude) {
		return nil, fmt.Errorf("%w: %w", errBadRequest, geo.ErrInvalidCoordinates)
	}

	if err := s.backend.Set(s.contextFor(e), p.Key, p.Record); err != nil {
		return nil, err
	}

	if s.opts.Sink != nil {
		if _, err := s.dispatcher.Dispatch(dispatcher.Event{
			Command:   cmdRecord,
			Payload:   e.Payload,
			Sender:    e.Sender,
			Timestamp: e.Timestamp,
		}); err != nil {
			s.logger.Warn("Location not recorded", "key", p.Key, "error", err)
		}
	}
	return nil, nil
}

func (s *Server) handleRecord(e dispatcher.Event) (any, error) {
	p, err := decode[streaming.SetPayload](e)
	if err != nil {
		return nil, err
	}
	return nil, s.opts.Sink.WriteLocation(context.Background(), p.Key, p.Record, e.Timestamp)
}

func (s *Server) handleDelete(e dispatcher.Event) (any, error) {
	p, err := decode[streaming.KeyPayload](e)
	if err != nil {
		return nil, err
	}
	if p.Key == "" {
		return nil, fmt.Errorf("%w: delete needs a key", errBadRequest)
	}
	return nil, s.backend.Delete(s.contextFor(e), p.Key)
}

func (s *Server) handleGet(e dispatcher.Event) (any, error) {
	p, err := decode[streaming.KeyPayload](e)
	if err != nil {
		return nil, err
	}
	rec, err := s.backend.Get(s.contextFor(e), p.Key)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Server) handleChildren(e dispatcher.Event) (any, error) {
	children, err := s.backend.Children(s.contextFor(e))
	if err != nil {
		return nil, err
	}
	out := streaming.ChildrenPayload{Children: make([]streaming.ChildPayload, len(children))}
	for i, c := range children {
		out.Children[i] = streaming.ChildPayload{Key: c.Key, Record: c.Record}
	}
	return out, nil
}

func (s *Server) handleSubscribe(e dispatcher.Event) (any, error) {
	c, ok := s.client(e.Sender)
	if !ok {
		return nil, fmt.Errorf("%w: subscribe needs a connection", errBadRequest)
	}
	if e.RequestID == 0 {
		return nil, fmt.Errorf("%w: subscribe needs a request id", errBadRequest)
	}

	sub, err := s.backend.Subscribe(c.ctx)
	if err != nil {
		return nil, err
	}
	if !c.addSubscription(e.RequestID, sub) {
		sub.Close()
		return nil, fmt.Errorf("%w: subscription %d already open", errBadRequest, e.RequestID)
	}
	go c.pump(e.RequestID, sub)
	return nil, nil
}

func (s *Server) handleUnsubscribe(e dispatcher.Event) (any, error) {
	c, ok := s.client(e.Sender)
	if !ok {
		return nil, fmt.Errorf("%w: unsubscribe needs a connection", errBadRequest)
	}
	p, err := decode[streaming.SubscriptionPayload](e)
	if err != nil {
		return nil, err
	}
	c.removeSubscription(p.ID)
	return nil, nil
}

func (s *Server) serveHealthcheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// serveLocations renders the current children as a GeoJSON FeatureCollection.
func (s *Server) serveLocations(w http.ResponseWriter, r *http.Request) {
	children, err := s.backend.Children(r.Context())
	if err != nil {
		s.logger.Error("Failed to list locations", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fc := make(geom.GeoJSONFeatureCollection, 0, len(children))
	for _, c := range children {
		fc = append(fc, geom.GeoJSONFeature{
			ID:       c.Record.ID,
			Geometry: geo.Point4326(c.Record.Latitude, c.Record.Longitude).AsGeometry(),
			Properties: map[string]any{
				"key":   c.Key,
				"label": c.Record.Label(),
			},
		})
	}
	s.writeJSON(w, http.StatusOK, fc)
}

// serveHistory renders the recorded track of one key as a GeoJSON Feature.
func (s *Server) serveHistory(w http.ResponseWriter, r *http.Request) {
	hr, ok := s.backend.(storage.HistoryReader)
	if !ok {
		http.Error(w, "history not kept by this store", http.StatusNotFound)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	track, err := hr.History(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("Failed to read history", "key", key, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, geom.GeoJSONFeature{
		ID:       key,
		Geometry: geo.TrackLineString(track).AsGeometry(),
		Properties: map[string]any{
			"fixes": len(track),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", "error", err)
	}
}
