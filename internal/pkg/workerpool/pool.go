package workerpool

import (
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool is a fixed-size worker pool backed by ants
type Pool struct {
	pool   *ants.Pool
	logger *logger.Logger
	closed bool
	mu     sync.RWMutex
}

// New creates a worker pool with the given capacity
func New(size int, log *logger.Logger) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	p, err := ants.NewPool(size, ants.WithPanicHandler(func(v interface{}) {
		log.Error("worker pool task panicked", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, err
	}

	return &Pool{
		pool:   p,
		logger: log,
	}, nil
}

// Submit schedules a task on the pool
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	return p.pool.Submit(task)
}

// Running returns the number of currently running workers
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release shuts the pool down
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.pool.Release()
}
