// Package browser owns the headless Chrome process used for supplier portal
// automation.
//
// One browser tab (chromedp context) is kept per session key, normally the
// supplier id, so portal login cookies survive between scans. Callers must go
// through Pool.With: it holds the session's lock for the duration of fn, which
// gives one writer per key at a time. Different keys run concurrently.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ghuser/procureflow/pkg/logger"
)

// ErrNotStarted is returned when the pool is used before Start or after Close.
var ErrNotStarted = errors.New("browser: pool not started")

// Options configure the Chrome allocator.
type Options struct {
	Headless  bool
	Timeout   time.Duration // per With call
	UserAgent string
}

// Session is one cached browser tab. LoggedIn is owned by whoever holds the lock.
type Session struct {
	Key      string
	LoggedIn bool
	LastUsed time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	opened bool
}

// Pool maps session keys to browser tabs sharing one Chrome process.
type Pool struct {
	opts Options
	log  logger.Logger
	// open attaches a new tab to the browser. It must not be given a
	// deadline: chromedp ties the browser's lifetime to the context of the
	// first Run on a tab.
	open func(ctx context.Context) error

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sessions    map[string]*Session
}

// NewPool returns an unstarted pool.
func NewPool(opts Options, log logger.Logger) *Pool {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Pool{
		opts:     opts,
		log:      log,
		open:     func(ctx context.Context) error { return chromedp.Run(ctx) },
		sessions: map[string]*Session{},
	}
}

// Start prepares the Chrome allocator. The process itself launches lazily on
// the first action.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
	)
	if p.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.opts.UserAgent))
	}
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	p.log.Info("browser: allocator ready", "headless", p.opts.Headless)
	return nil
}

// With runs fn against the session for key, creating the tab on first use.
// The context passed to fn is a chromedp context bounded by the pool timeout
// and by ctx. Cancelling it ends fn's actions only; the tab stays open.
func (p *Pool) With(ctx context.Context, key string, fn func(ctx context.Context, s *Session) error) error {
	s, err := p.session(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		if err := p.open(s.ctx); err != nil {
			p.Reset(key)
			return fmt.Errorf("browser: open session %s: %w", key, err)
		}
		s.opened = true
	}

	runCtx, cancel := context.WithTimeout(s.ctx, p.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s.LastUsed = time.Now()
	if err := fn(runCtx, s); err != nil {
		return fmt.Errorf("browser: session %s: %w", key, err)
	}
	return nil
}

// Reset closes the tab for key so the next With starts a fresh login.
func (p *Pool) Reset(key string) {
	p.mu.Lock()
	s, ok := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()
	if ok {
		s.cancel()
	}
}

// Sessions reports how many tabs are cached.
func (p *Pool) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Ping reports whether the pool is usable.
func (p *Pool) Ping(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocCtx == nil {
		return ErrNotStarted
	}
	return nil
}

// Close closes every tab and the browser process.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.sessions {
		s.cancel()
		delete(p.sessions, key)
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.allocCtx, p.allocCancel = nil, nil
	p.log.Info("browser: pool closed")
}

func (p *Pool) session(key string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocCtx == nil {
		return nil, ErrNotStarted
	}
	if s, ok := p.sessions[key]; ok {
		return s, nil
	}
	tabCtx, cancel := chromedp.NewContext(p.allocCtx)
	s := &Session{Key: key, ctx: tabCtx, cancel: cancel}
	p.sessions[key] = s
	return s, nil
}
