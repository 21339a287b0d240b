package syncclient

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tokosync/backend/internal/localstore"
)

// Session runs the pull and push loops for one terminal. Each operation is
// single-flight on its own: a pull tick landing while a pull is still
// running is dropped, not queued, and likewise for pushes, but a pull never
// blocks a push or vice versa.
type Session struct {
	client       *Client
	local        *localstore.Store
	pullInterval time.Duration
	pushInterval time.Duration
	timeout      time.Duration

	pullInFlight atomic.Bool
	pushInFlight atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
	once         sync.Once
}

func NewSession(client *Client, local *localstore.Store, pullInterval, pushInterval, timeout time.Duration) *Session {
	if pullInterval <= 0 {
		pullInterval = 5 * time.Minute
	}
	if pushInterval <= 0 {
		pushInterval = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{
		client:       client,
		local:        local,
		pullInterval: pullInterval,
		pushInterval: pushInterval,
		timeout:      timeout,
		done:         make(chan struct{}),
	}
}

// Start launches the timer loops. An initial pull runs immediately so the
// terminal starts from the freshest state it can get.
func (s *Session) Start() {
	s.wg.Add(2)
	go func() {
		s.PullOnce()
		s.loop(s.pullInterval, s.PullOnce)
	}()
	go s.loop(s.pushInterval, s.PushOnce)
}

// Close stops both loops and waits for any in-flight attempt to finish.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Session) loop(interval time.Duration, run func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			run()
		}
	}
}

// PullOnce fetches the remote snapshot and folds it into the local store.
// A failed pull leaves local state untouched.
func (s *Session) PullOnce() {
	if !s.pullInFlight.CompareAndSwap(false, true) {
		return
	}
	defer s.pullInFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snap, err := s.client.Pull(ctx)
	if err != nil {
		log.Printf("[syncclient] WARN: pull failed: %v", err)
		return
	}
	s.local.ApplyRemote(snap)
}

// PushOnce sends the full local state. A failed push changes nothing; the
// next tick retries with whatever the state is by then.
func (s *Session) PushOnce() {
	if !s.pushInFlight.CompareAndSwap(false, true) {
		return
	}
	defer s.pushInFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Push(ctx, s.local.PushRequest()); err != nil {
		log.Printf("[syncclient] WARN: push failed: %v", err)
	}
}
