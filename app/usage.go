package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/ports"
	"github.com/rs/zerolog"
)

// ErrRecorderClosed is returned by Flush after Close.
var ErrRecorderClosed = errors.New("usage recorder closed")

// UsageRecorder buffers usage records in a bounded queue and writes them in
// batches from a single worker. Delivery is at most once: a full queue drops
// new records, and a failed batch is logged and discarded.
type UsageRecorder struct {
	sink    ports.UsageSink
	metrics ports.UsageMetrics
	logger  zerolog.Logger

	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool
	queue  chan usage.Record

	flushReq chan chan error
	done     chan struct{}
}

// UsageRecorderConfig configures the recorder.
type UsageRecorderConfig struct {
	BufferSize    int           // default: 10000
	BatchSize     int           // default: 100
	FlushInterval time.Duration // default: 5s
	WriteTimeout  time.Duration // default: 10s
}

// NewUsageRecorder creates a recorder and starts its worker.
func NewUsageRecorder(sink ports.UsageSink, m ports.UsageMetrics, logger zerolog.Logger, cfg UsageRecorderConfig) *UsageRecorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	r := &UsageRecorder{
		sink:          sink,
		metrics:       m,
		logger:        logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		writeTimeout:  cfg.WriteTimeout,
		queue:         make(chan usage.Record, cfg.BufferSize),
		flushReq:      make(chan chan error),
		done:          make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues a record without blocking. It is a no-op after Close.
func (r *UsageRecorder) Record(rec usage.Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.count("dropped", 1)
		r.logger.Warn().Str("key_id", rec.APIKeyID).Msg("usage queue full, record dropped")
	}
}

// Flush writes everything queued so far.
func (r *UsageRecorder) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.flushReq <- reply:
	case <-r.done:
		return ErrRecorderClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records, writes what is queued and stops the worker.
func (r *UsageRecorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	<-r.done
	return nil
}

// Pending returns the number of queued records.
func (r *UsageRecorder) Pending() int {
	return len(r.queue)
}

func (r *UsageRecorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]usage.Record, 0, r.batchSize)
	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				r.write(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= r.batchSize {
				r.write(batch)
				batch = make([]usage.Record, 0, r.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.write(batch)
				batch = make([]usage.Record, 0, r.batchSize)
			}

		case reply := <-r.flushReq:
			batch = r.drain(batch)
			reply <- r.write(batch)
			batch = make([]usage.Record, 0, r.batchSize)
		}
	}
}

// drain moves every record currently queued into batch.
func (r *UsageRecorder) drain(batch []usage.Record) []usage.Record {
	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				return batch
			}
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

// write sends records to the sink in batchSize chunks.
func (r *UsageRecorder) write(records []usage.Record) error {
	var firstErr error
	for len(records) > 0 {
		n := min(len(records), r.batchSize)
		chunk := records[:n]
		records = records[n:]

		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := r.sink.RecordBatch(ctx, chunk)
		cancel()

		if err != nil {
			r.count("failed", len(chunk))
			r.logger.Error().Err(err).Int("records", len(chunk)).Msg("usage batch write failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.count("written", len(chunk))
	}
	if r.metrics != nil {
		r.metrics.UsageQueueDepth(r.Pending())
	}
	return firstErr
}

func (r *UsageRecorder) count(result string, n int) {
	if r.metrics != nil {
		r.metrics.UsageRecords(result, n)
	}
}

// Ensure interface compliance.
var _ ports.UsageRecorder = (*UsageRecorder)(nil)
