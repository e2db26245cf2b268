package jobqueue

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// Manager guards a queue's start/stop so the scheduler and shutdown path
// can call them without tracking state.
type Manager struct {
	queue *Queue

	mu      sync.Mutex
	running bool
}

var (
	defaultManager *Manager
	initOnce       sync.Once
)

// NewManager wraps queue; register handlers before Start.
func NewManager(queue *Queue) *Manager {
	return &Manager{queue: queue}
}

// InitManager installs the process-wide manager. Later calls return the
// first manager and ignore queue.
func InitManager(queue *Queue) *Manager {
	initOnce.Do(func() {
		defaultManager = NewManager(queue)
	})
	return defaultManager
}

func (m *Manager) GetQueue() *Queue {
	return m.queue
}

func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.queue.Start()
	m.running = true
	log.Info("[JobQueue] Delivery queue running")
}

// Stop blocks until in-flight deliveries complete.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue] Delivery queue stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
