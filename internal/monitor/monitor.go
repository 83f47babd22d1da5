package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/doggo-app/locshare/internal/logging"
	"github.com/doggo-app/locshare/internal/storage"
)

const defaultInterval = 10 * time.Second

// StatsWriter receives periodic counters, e.g. the influx manager.
type StatsWriter interface {
	WriteStats(ctx context.Context, fields map[string]any, t time.Time) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats      storage.Stats
	LogManager *logging.SlogManager
	Sink       StatsWriter  // optional
	Clients    func() int   // optional, connected store clients
	StatusPath string       // optional, rewritten on every tick
	Interval   time.Duration
}

// Status is one sample of the store counters.
type Status struct {
	Time          time.Time `json:"time"`
	Subscribers   int       `json:"subscribers"`
	PendingWrites int       `json:"pendingWrites"`
	Clients       int       `json:"clients"`
}

// Fields returns the status as influx fields.
func (st Status) Fields() map[string]any {
	return map[string]any{
		"subscribers":    st.Subscribers,
		"pending_writes": st.PendingWrites,
		"clients":        st.Clients,
	}
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus samples the current counters.
func (s *Service) GetStatus() Status {
	st := Status{Time: time.Now()}
	if s.deps.Stats != nil {
		st.Subscribers = s.deps.Stats.SubscriberCount()
		st.PendingWrites = s.deps.Stats.PendingWrites()
	}
	if s.deps.Clients != nil {
		st.Clients = s.deps.Clients()
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusPath != "" {
		f, err := os.Create(s.deps.StatusPath)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.tick(statusFile)
			}
		}
	}()

	return nil
}

func (s *Service) tick(statusFile *os.File) {
	logger := s.deps.LogManager.Logger()
	st := s.GetStatus()

	logger.Debug("Store status",
		"subscribers", st.Subscribers,
		"pendingWrites", st.PendingWrites,
		"clients", st.Clients)

	if statusFile != nil {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		_ = statusFile.Truncate(0)
		_, _ = statusFile.Seek(0, 0)
		_, _ = statusFile.Write(append(data, '\n'))
	}

	if s.deps.Sink != nil {
		if err := s.deps.Sink.WriteStats(context.Background(), st.Fields(), st.Time); err != nil {
			logger.Error("Error writing store status", "error", err)
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
