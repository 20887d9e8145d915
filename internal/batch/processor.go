// Package batch coalesces inbound queries so arrival bursts are
// decoupled from downstream processing rate.
package batch

import (
	"sync"
	"time"

	"codeask/internal/logging"
)

// Handler receives each flushed batch in submission order.
type Handler func(items []string)

// Config controls flush behavior.
type Config struct {
	MaxSize  int
	Interval time.Duration
}

// DefaultConfig returns the default batching configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:  10,
		Interval: 5 * time.Second,
	}
}

// Processor buffers submitted items and flushes them as a group when
// the buffer reaches MaxSize or the interval elapses, whichever comes
// first. A flush with zero items is a no-op. Close flushes whatever is
// still buffered before the loop exits.
type Processor struct {
	config  Config
	handler Handler
	logger  *logging.Logger

	in     chan string
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// NewProcessor creates a processor and starts its flush loop.
func NewProcessor(config Config, handler Handler, logger *logging.Logger) *Processor {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}

	p := &Processor{
		config:  config,
		handler: handler,
		logger:  logger,
		in:      make(chan string, 100),
		done:    make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Submit enqueues an item. It returns false after Close.
func (p *Processor) Submit(item string) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.in <- item:
		return true
	case <-p.done:
		return false
	}
}

// Close stops the loop, flushing any buffered items first.
func (p *Processor) Close() {
	p.closed.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Processor) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	var buffer []string

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		items := buffer
		buffer = nil
		if p.logger != nil {
			p.logger.Debug("Flushing batch", map[string]interface{}{
				"size": len(items),
			})
		}
		p.handler(items)
	}

	for {
		select {
		case item := <-p.in:
			buffer = append(buffer, item)
			if len(buffer) >= p.config.MaxSize {
				flush()
				ticker.Reset(p.config.Interval)
			}

		case <-ticker.C:
			flush()

		case <-p.done:
			// Drain anything raced into the channel, then flush the
			// remainder rather than dropping it.
			for {
				select {
				case item := <-p.in:
					buffer = append(buffer, item)
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}
