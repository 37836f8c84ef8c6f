// Package telemetry bridges task spans to OpenTelemetry and the output renderer.
package telemetry

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultSizeLimit is the buffered byte count that forces a flush.
	DefaultSizeLimit = 4096
	// DefaultTimeLimit is the interval after which buffered output is flushed.
	DefaultTimeLimit = 50 * time.Millisecond
)

var errBatcherClosed = errors.New("batch processor is closed")

// BatchProcessor buffers task output until a size or time limit is reached.
// It is safe for concurrent use.
type BatchProcessor struct {
	sizeLimit int
	timeLimit time.Duration
	onFlush   func([]byte)

	mu     sync.Mutex
	buffer bytes.Buffer
	ticker *time.Ticker
	stopCh chan struct{}
	closed bool
}

// NewBatchProcessor returns a running BatchProcessor. Non-positive limits select the defaults.
// Close stops the background flusher.
func NewBatchProcessor(sizeLimit int, timeLimit time.Duration, onFlush func([]byte)) *BatchProcessor {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}

	bp := &BatchProcessor{
		sizeLimit: sizeLimit,
		timeLimit: timeLimit,
		onFlush:   onFlush,
		stopCh:    make(chan struct{}),
		ticker:    time.NewTicker(timeLimit),
	}
	go bp.run()
	return bp
}

// Write buffers p, flushing once the size limit is reached.
func (bp *BatchProcessor) Write(p []byte) (int, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.closed {
		return 0, errBatcherClosed
	}

	n, _ := bp.buffer.Write(p)
	if bp.buffer.Len() >= bp.sizeLimit {
		bp.flushLocked()
		bp.ticker.Reset(bp.timeLimit)
	}
	return n, nil
}

// Flush hands any buffered data to the callback.
func (bp *BatchProcessor) Flush() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return
	}
	bp.flushLocked()
}

// Close stops the background flusher and performs a final flush.
func (bp *BatchProcessor) Close() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.closed {
		return nil
	}
	bp.closed = true
	close(bp.stopCh)
	bp.flushLocked()
	return nil
}

func (bp *BatchProcessor) run() {
	for {
		select {
		case <-bp.ticker.C:
			bp.Flush()
		case <-bp.stopCh:
			bp.ticker.Stop()
			return
		}
	}
}

// flushLocked must be called with mu held. Holding the lock keeps chunks in order.
func (bp *BatchProcessor) flushLocked() {
	if bp.buffer.Len() == 0 {
		return
	}
	data := bytes.Clone(bp.buffer.Bytes())
	bp.buffer.Reset()
	if bp.onFlush != nil {
		bp.onFlush(data)
	}
}
