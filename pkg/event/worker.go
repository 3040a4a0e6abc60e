package event

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"advoid/pkg/logging"
)

// Event kind names, used as path components by the uploaders.
const (
	kindRequest  = "request"
	kindResponse = "response"
)

const uploadTimeout = 30 * time.Second

// Uploader ships one serialised batch (newline-delimited JSON) to a backend.
type Uploader interface {
	Upload(ctx context.Context, kind string, payload []byte) error
}

// runWorker drains ch into batches and flushes each batch as a single
// payload, whenever the batch reaches batchSize or interval has elapsed
// since the last flush, whichever comes first. It returns when ch is closed,
// after a final flush of whatever is buffered. Upload failures drop the
// batch and are logged; the worker keeps going.
func runWorker[T any](ch <-chan T, kind string, up Uploader, batchSize int, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]T, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		payload := encodeBatch(batch, logger)

		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		if err := up.Upload(ctx, kind, payload); err != nil {
			logger.Error("Failed to upload event batch",
				"kind", kind,
				"batch_size", len(batch),
				"error", err)
		}
		cancel()

		batch = batch[:0]
		ticker.Reset(interval)
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// encodeBatch serialises a batch as newline-delimited JSON, one object per
// line, preserving enqueue order. Records that fail to marshal are logged
// and skipped.
func encodeBatch[T any](batch []T, logger *logging.Logger) []byte {
	var buf bytes.Buffer
	for i := range batch {
		line, err := json.Marshal(batch[i])
		if err != nil {
			logger.Error("Failed to serialise event", "error", err)
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// runGuarded invokes f and converts a panic into a logged error. It reports
// whether f returned normally, so callers can restart a panicked worker.
func runGuarded(kind string, logger *logging.Logger, f func()) (normal bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event worker panicked, restarting", "kind", kind, "panic", r)
			normal = false
		}
	}()
	f()
	return true
}
