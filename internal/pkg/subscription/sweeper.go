package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Task is one periodic autocharge job run by the Sweeper.
type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time)
}

// Sweeper runs autocharge tasks on a fixed interval in background
// goroutines. It can be stopped and restarted safely.
type Sweeper struct {
	interval time.Duration
	tasks    []Task
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper running the given tasks every interval.
func NewSweeper(interval time.Duration, tasks ...Task) *Sweeper {
	return &Sweeper{
		interval: interval,
		tasks:    tasks,
	}
}

// Start launches the sweep loop. Each task also runs once immediately so a
// restart does not delay overdue charges by a full interval.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.ticker = time.NewTicker(s.interval)

	log.Infof("[Sweeper] Starting autocharge sweeper (interval: %s, tasks: %d)", s.interval, len(s.tasks))

	s.wg.Add(1)
	go s.loop()
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.running = false
	s.wg.Wait()

	log.Info("[Sweeper] Stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	s.runAll()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ticker.C:
			s.runAll()
		}
	}
}

func (s *Sweeper) runAll() {
	now := time.Now().UTC()
	for _, t := range s.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		t.Run(ctx, now)
		cancel()
		log.Debugf("[Sweeper] Task %s completed", t.Name)
	}
}
