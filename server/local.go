package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/types"
)

// storage layout created under the data directory during schema setup.
var storageSubdirs = []string{"data", "agents", "cache"}

// Local is the in-process reference server. Storage is rooted at the run's
// scratch directory (or validated external database URL); agents live in an
// in-memory registry exposed over HTTP.
type Local struct {
	log *zap.SugaredLogger

	mu          sync.Mutex
	cfg         Config
	initialized bool
	started     bool
	listener    net.Listener
	httpServer  *http.Server

	agents     []*types.RuntimeHandle
	startAgent StartAgentFunc
	resolvers  CharacterResolvers
}

var _ Server = (*Local)(nil)

// NewLocal creates an uninitialized local server.
func NewLocal(log *zap.SugaredLogger) *Local {
	return &Local{log: log}
}

// Initialize performs storage and schema setup. With an external database
// URL the URL is validated and recorded; otherwise the scratch directory is
// laid out with the storage schema.
func (s *Local) Initialize(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return errors.New("server already initialized")
	}

	if cfg.ExternalDBURL != "" {
		u, err := url.Parse(cfg.ExternalDBURL)
		if err != nil {
			return fmt.Errorf("parsing external database url: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("unsupported external database scheme %q", u.Scheme)
		}
		s.log.Infow("storage pointed at external database", "host", u.Host)
	} else {
		if cfg.DataDir == "" {
			return errors.New("data directory is required without an external database")
		}
		for _, sub := range storageSubdirs {
			if err := os.MkdirAll(filepath.Join(cfg.DataDir, sub), 0o755); err != nil {
				return fmt.Errorf("storage schema setup: %w", err)
			}
		}
		meta := map[string]any{
			"schemaVersion": 1,
			"createdAt":     time.Now().UTC().Format(time.RFC3339),
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding storage metadata: %w", err)
		}
		if err := os.WriteFile(filepath.Join(cfg.DataDir, "meta.json"), data, 0o644); err != nil {
			return fmt.Errorf("writing storage metadata: %w", err)
		}
		s.log.Debugw("storage initialized", "dataDir", cfg.DataDir)
	}

	s.cfg = cfg
	s.initialized = true
	return nil
}

// Start binds the HTTP surface on the given port. The allocator probes the
// port before the run, but another process can win the race in between, so
// the bind is retried briefly before failing.
func (s *Local) Start(ctx context.Context, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("server must be initialized before start")
	}
	if s.started {
		return errors.New("server already started")
	}

	var ln net.Listener
	bind := func() error {
		var err error
		ln, err = net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		return err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 5), ctx)
	if err := backoff.Retry(bind, bo); err != nil {
		return fmt.Errorf("binding port %d: %w", port, err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/agents", s.handleAgents).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})

	s.listener = ln
	s.httpServer = &http.Server{Handler: c.Handler(router)}
	s.started = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("server stopped serving", "err", err)
		}
	}()

	s.log.Infow("runtime server started", "port", port)
	return nil
}

// Stop releases the listening socket. Idempotent.
func (s *Local) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.log.Info("runtime server stopped")
	return nil
}

// RegisterAgent adds a started agent to the registry.
func (s *Local) RegisterAgent(handle *types.RuntimeHandle) error {
	if handle == nil {
		return errors.New("nil agent handle")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.agents {
		if existing.ID == handle.ID {
			return fmt.Errorf("agent %s already registered", handle.ID)
		}
	}
	s.agents = append(s.agents, handle)
	s.log.Debugw("agent registered", "agent", handle.Character.Name, "id", handle.ID)
	return nil
}

// Agents returns the registered agents in registration order.
func (s *Local) Agents() []*types.RuntimeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.RuntimeHandle, len(s.agents))
	copy(out, s.agents)
	return out
}

// InjectAgentStart installs the harness agent-start implementation.
func (s *Local) InjectAgentStart(fn StartAgentFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startAgent = fn
}

// InjectCharacterResolvers installs the character-resolution helpers.
func (s *Local) InjectCharacterResolvers(r CharacterResolvers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers = r
}

// Resolvers returns the injected character-resolution helpers.
func (s *Local) Resolvers() CharacterResolvers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvers
}

// StartAgent runs the injected agent-start implementation, falling back to
// a bare handle when nothing was injected.
func (s *Local) StartAgent(ctx context.Context, character types.Character, init types.InitFunc, plugins []types.Plugin, opts StartOptions) (*types.RuntimeHandle, error) {
	s.mu.Lock()
	fn := s.startAgent
	s.mu.Unlock()

	if fn == nil {
		handle := types.NewRuntimeHandle(character, plugins, nil)
		if err := s.RegisterAgent(handle); err != nil {
			return nil, err
		}
		return handle, nil
	}
	return fn(ctx, character, init, plugins, opts)
}

func (s *Local) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *Local) handleAgents(w http.ResponseWriter, _ *http.Request) {
	type agentInfo struct {
		ID        string   `json:"id"`
		Character string   `json:"character"`
		Plugins   []string `json:"plugins"`
	}
	agents := s.Agents()
	out := make([]agentInfo, 0, len(agents))
	for _, a := range agents {
		names := make([]string, 0, len(a.Plugins))
		for _, p := range a.Plugins {
			names = append(names, p.Name())
		}
		out = append(out, agentInfo{ID: a.ID.String(), Character: a.Character.Name, Plugins: names})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Warnw("encoding agents response", "err", err)
	}
}
