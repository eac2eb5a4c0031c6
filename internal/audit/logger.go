package audit

import (
	"context"
	"log"
	"time"

	"github.com/hoststack/license-service/internal/models"
)

// Agent strings come straight from callers; cap them before storage.
const MaxAgentLength = 256

const (
	batchSize     = 100
	flushInterval = 5 * time.Second
)

// Sink is where batched entries land. *repository.ValidationLogRepository
// satisfies it.
type Sink interface {
	CreateBatch(ctx context.Context, logs []*models.ValidationLog) error
}

// Logger persists every validation attempt off the request path. Entries
// flow through a buffered channel into a batching worker; a full buffer
// or a failed insert drops entries rather than blocking or erroring the
// validation itself.
type Logger struct {
	entries chan models.ValidationLog
	sink    Sink
	stop    chan struct{}
	done    chan struct{}
}

func NewLogger(sink Sink, bufferSize int) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	l := &Logger{
		entries: make(chan models.ValidationLog, bufferSize),
		sink:    sink,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go l.worker()

	return l
}

// Record queues an entry for persistence. Never blocks, never fails.
func (l *Logger) Record(entry models.ValidationLog) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if len(entry.UserAgent) > MaxAgentLength {
		entry.UserAgent = entry.UserAgent[:MaxAgentLength]
	}

	select {
	case l.entries <- entry:
	default:
		log.Printf("Audit log buffer full, dropping entry for %s", entry.LicenseKey)
	}
}

// Close flushes pending entries and stops the worker.
func (l *Logger) Close() {
	close(l.stop)
	<-l.done
}

func (l *Logger) worker() {
	defer close(l.done)

	batch := make([]*models.ValidationLog, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.entries:
			e := entry
			batch = append(batch, &e)

			if len(batch) >= batchSize {
				l.flush(batch)
				batch = make([]*models.ValidationLog, 0, batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = make([]*models.ValidationLog, 0, batchSize)
			}
		case <-l.stop:
			// Drain whatever is already queued, then flush once.
			for {
				select {
				case entry := <-l.entries:
					e := entry
					batch = append(batch, &e)
					continue
				default:
				}
				break
			}
			l.flush(batch)
			return
		}
	}
}

func (l *Logger) flush(batch []*models.ValidationLog) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.sink.CreateBatch(ctx, batch); err != nil {
		// Forensics are best-effort; the entries are lost but the
		// validation results already went out.
		log.Printf("Failed to insert %d validation logs: %v", len(batch), err)
	}
}
