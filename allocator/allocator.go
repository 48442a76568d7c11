// Package allocator provisions the per-run resource lease: a free network
// port and a freshly-emptied scratch directory.
package allocator

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/types"
)

const (
	// DefaultScanLimit bounds the port scan above the preferred port.
	DefaultScanLimit = 100

	scratchRootName = "agent-acceptor"
)

// ErrResourceExhausted is returned when no free port exists within the
// bounded scan window.
var ErrResourceExhausted = errors.New("resource exhausted")

// Allocator hands out resource leases. The zero value is not usable; use New.
type Allocator struct {
	host      string
	scanLimit int
	tempRoot  string
	log       *zap.SugaredLogger
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithHost sets the host interface used to probe ports. Defaults to all
// interfaces.
func WithHost(host string) Option {
	return func(a *Allocator) { a.host = host }
}

// WithScanLimit bounds how many ports above the preferred port are probed.
func WithScanLimit(n int) Option {
	return func(a *Allocator) { a.scanLimit = n }
}

// WithTempRoot overrides the base directory scratch directories live under.
func WithTempRoot(dir string) Option {
	return func(a *Allocator) { a.tempRoot = dir }
}

// New creates an Allocator.
func New(log *zap.SugaredLogger, opts ...Option) *Allocator {
	a := &Allocator{
		scanLimit: DefaultScanLimit,
		tempRoot:  os.TempDir(),
		log:       log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AllocatePort returns the first free port >= preferred. Ports held by other
// processes are skipped; running out of the scan window returns
// ErrResourceExhausted.
func (a *Allocator) AllocatePort(preferred int) (int, error) {
	if preferred <= 0 || preferred > 65535 {
		return 0, fmt.Errorf("invalid preferred port %d", preferred)
	}

	for port := preferred; port <= 65535 && port < preferred+a.scanLimit; port++ {
		addr := net.JoinHostPort(a.host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			// Bound by another process; move on.
			a.log.Debugw("port in use, trying next", "port", port)
			continue
		}
		if err := ln.Close(); err != nil {
			a.log.Warnw("closing probe listener", "port", port, "err", err)
		}
		if port != preferred {
			a.log.Infow("preferred port unavailable, selected alternative",
				"preferred", preferred, "port", port)
		}
		return port, nil
	}

	return 0, fmt.Errorf("%w: no free port in [%d, %d)", ErrResourceExhausted,
		preferred, preferred+a.scanLimit)
}

// AllocateScratchDir creates a fresh scratch directory namespaced by
// baseName plus a timestamp suffix. Any pre-existing directory at the exact
// target path is removed first, so stale state from a crashed run never
// leaks into a new one.
func (a *Allocator) AllocateScratchDir(baseName string) (string, error) {
	if baseName == "" {
		return "", errors.New("base name is required")
	}

	dir := filepath.Join(a.tempRoot, scratchRootName,
		fmt.Sprintf("%s-%d", baseName, time.Now().UnixMilli()))

	create := func() error {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("resetting scratch dir %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating scratch dir %s: %w", dir, err)
		}
		return nil
	}

	// Transient filesystem errors get a few retries before we give up.
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 3)
	if err := backoff.Retry(create, bo); err != nil {
		return "", err
	}

	a.log.Debugw("allocated scratch directory", "dir", dir)
	return dir, nil
}

// Allocate acquires a full resource lease for one run.
func (a *Allocator) Allocate(preferredPort int, baseName string) (*types.ResourceLease, error) {
	port, err := a.AllocatePort(preferredPort)
	if err != nil {
		return nil, err
	}
	dir, err := a.AllocateScratchDir(baseName)
	if err != nil {
		return nil, err
	}
	return &types.ResourceLease{
		Port:       port,
		ScratchDir: dir,
		AcquiredAt: time.Now(),
	}, nil
}

// Release removes the lease's scratch directory and, when it became empty,
// its parent. Removal failures are reported but are not fatal to the run.
func (a *Allocator) Release(lease *types.ResourceLease) error {
	if lease == nil || lease.ScratchDir == "" {
		return nil
	}
	if err := os.RemoveAll(lease.ScratchDir); err != nil {
		return fmt.Errorf("removing scratch dir %s: %w", lease.ScratchDir, err)
	}
	// Best-effort: drop the shared parent when this was the last run.
	_ = os.Remove(filepath.Dir(lease.ScratchDir))
	return nil
}
