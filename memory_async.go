package companion

import (
	"context"
	"log"
	"sync"
	"time"
)

// ──────────────────────────────────────────────
// Async Memory Committer — background long-term writes
// ──────────────────────────────────────────────

// CommitterConfig controls the background commit pipeline.
type CommitterConfig struct {
	Workers    int           // worker goroutines, default 2
	QueueSize  int           // buffered channel capacity, default 128
	JobTimeout time.Duration // per-commit ceiling, default 10s
}

// DefaultCommitterConfig returns production defaults.
func DefaultCommitterConfig() CommitterConfig {
	return CommitterConfig{
		Workers:    2,
		QueueSize:  128,
		JobTimeout: 10 * time.Second,
	}
}

type commitJob struct {
	UserID string
	Text   string
	Source string
}

// AsyncMemoryCommitter keeps embedding and vector writes off the turn's hot
// path. Enqueue never blocks: when the queue is full the job is dropped and
// logged. Stop drains the queue before returning.
type AsyncMemoryCommitter struct {
	memory *LongTermMemory
	config CommitterConfig

	queue chan commitJob
	wg    sync.WaitGroup

	stopOnce sync.Once
}

// NewAsyncMemoryCommitter creates and starts the pipeline.
func NewAsyncMemoryCommitter(memory *LongTermMemory, config CommitterConfig) *AsyncMemoryCommitter {
	if config.Workers <= 0 {
		config = DefaultCommitterConfig()
	}
	c := &AsyncMemoryCommitter{
		memory: memory,
		config: config,
		queue:  make(chan commitJob, config.QueueSize),
	}
	for i := 0; i < config.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Enqueue schedules a commit. Returns false when the queue is full and the
// job was dropped.
func (c *AsyncMemoryCommitter) Enqueue(userID, text, source string) bool {
	if text == "" || c.memory == nil || !c.memory.Available() {
		return false
	}
	select {
	case c.queue <- commitJob{UserID: userID, Text: text, Source: source}:
		return true
	default:
		log.Printf("[MemoryCommitter] queue full, dropped | user=%s", userID)
		return false
	}
}

func (c *AsyncMemoryCommitter) worker() {
	defer c.wg.Done()
	for job := range c.queue {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.JobTimeout)
		if _, err := c.memory.Commit(ctx, job.UserID, job.Text, job.Source); err != nil {
			log.Printf("[MemoryCommitter] commit failed | user=%s err=%v", job.UserID, err)
		}
		cancel()
	}
}

// Stop closes the queue and waits for the workers to finish the backlog.
func (c *AsyncMemoryCommitter) Stop() {
	c.stopOnce.Do(func() {
		close(c.queue)
		c.wg.Wait()
	})
}
