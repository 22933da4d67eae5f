package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("purge worker pool is closed")
	// ErrQueueFull is returned by Submit when the request buffer is full.
	ErrQueueFull = errors.New("purge queue is full")
)

type PurgeService interface {
	PurgeExpired(ctx context.Context, codes []string) (int, error)
}

// PurgeWorkerPool collects codes of expired mappings and removes them in batches.
type PurgeWorkerPool struct {
	service      PurgeService
	requestChan  chan []string
	batchSize    int
	batchTimeout time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeMu      sync.RWMutex
	closed       bool
	shutdownOnce sync.Once
}

type Config struct {
	WorkerCount  int           // number of workers
	BufferSize   int           // request channel capacity
	BatchSize    int           // codes per purge call
	BatchTimeout time.Duration // max time a code waits in a partial batch
}

func DefaultConfig() Config {
	return Config{
		WorkerCount:  2,
		BufferSize:   256,
		BatchSize:    50,
		BatchTimeout: 2 * time.Second,
	}
}

func NewPurgeWorkerPool(service PurgeService, config Config) *PurgeWorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &PurgeWorkerPool{
		service:      service,
		requestChan:  make(chan []string, config.BufferSize),
		batchSize:    config.BatchSize,
		batchTimeout: config.BatchTimeout,
		workerCount:  config.WorkerCount,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (p *PurgeWorkerPool) Start() {
	log.Info().
		Int("workers", p.workerCount).
		Int("batchSize", p.batchSize).
		Dur("batchTimeout", p.batchTimeout).
		Msg("Starting purge worker pool")

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *PurgeWorkerPool) worker(id int) {
	defer p.wg.Done()

	log.Debug().Int("workerID", id).Msg("Worker started")

	batch := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	processBatch := func() {
		if len(batch) == 0 {
			return
		}

		codes := make([]string, 0, len(batch))
		for code := range batch {
			codes = append(codes, code)
		}
		clear(batch)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		removed, err := p.service.PurgeExpired(ctx, codes)
		if err != nil {
			log.Error().
				Err(err).
				Int("workerID", id).
				Int("codeCount", len(codes)).
				Msg("Failed to purge expired codes")
			return
		}

		log.Debug().
			Int("workerID", id).
			Int("codeCount", len(codes)).
			Int("removed", removed).
			Msg("Purged expired codes")
	}

	startTimer := func() {
		if timer == nil {
			timer = time.NewTimer(p.batchTimeout)
		} else {
			timer.Reset(p.batchTimeout)
		}
		timerC = timer.C
	}

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerC = nil
	}

	for {
		select {
		case <-p.ctx.Done():
			log.Debug().Int("workerID", id).Msg("Worker shutting down")
			processBatch()
			stopTimer()
			return

		case codes, ok := <-p.requestChan:
			if !ok {
				log.Debug().Int("workerID", id).Msg("Request channel closed, processing remaining batch")
				processBatch()
				stopTimer()
				return
			}

			batchWasEmpty := len(batch) == 0
			for _, code := range codes {
				batch[code] = struct{}{}
			}

			if len(batch) >= p.batchSize {
				stopTimer()
				processBatch()
			} else if batchWasEmpty && len(batch) > 0 {
				startTimer()
			}

		case <-timerC:
			timerC = nil
			processBatch()
		}
	}
}

// Submit queues codes for purging without blocking the caller.
func (p *PurgeWorkerPool) Submit(codes ...string) error {
	if len(codes) == 0 {
		return nil
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.requestChan <- codes:
		log.Debug().Int("codeCount", len(codes)).Msg("Purge request submitted")
		return nil
	default:
		log.Warn().Int("codeCount", len(codes)).Msg("Purge queue is full, dropping request")
		return ErrQueueFull
	}
}

// Shutdown stops accepting codes and waits for queued batches to be purged.
func (p *PurgeWorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		log.Info().Msg("Shutting down purge worker pool")

		p.closeMu.Lock()
		p.closed = true
		close(p.requestChan)
		p.closeMu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("Purge worker pool shut down gracefully")
		case <-time.After(timeout):
			log.Warn().Msg("Purge worker pool shutdown timeout, forcing shutdown")
			p.cancel()
			<-done
			shutdownErr = context.DeadlineExceeded
		}
		p.cancel()
	})

	return shutdownErr
}

func (p *PurgeWorkerPool) Stats() PoolStats {
	return PoolStats{
		QueueSize:   len(p.requestChan),
		QueueCap:    cap(p.requestChan),
		WorkerCount: p.workerCount,
	}
}

type PoolStats struct {
	QueueSize   int
	QueueCap    int
	WorkerCount int
}
