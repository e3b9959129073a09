package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Worker decouples command handling from audit persistence: records are
// queued on a buffered channel and written by one goroutine. A full buffer
// drops the record rather than stalling a chat command.
type Worker struct {
	records chan Record
	sink    Sink
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWorker(sink Sink, bufferSize int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		records: make(chan Record, bufferSize),
		sink:    sink,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case r := <-w.records:
				w.save(w.ctx, r)
			case <-w.ctx.Done():
				w.drain()
				return
			}
		}
	}()
}

// drain flushes whatever is still buffered after cancellation. Saves run
// against a fresh context; the worker's own is already done.
func (w *Worker) drain() {
	flushed := 0
	for {
		select {
		case r := <-w.records:
			w.save(context.Background(), r)
			flushed++
		default:
			if flushed > 0 {
				slog.Info("flushed buffered audit records", "count", flushed)
			}
			return
		}
	}
}

func (w *Worker) save(ctx context.Context, r Record) {
	if err := w.sink.Save(ctx, r); err != nil {
		slog.Error("failed to save audit record", "error", err, "action", r.Action)
	}
}

func (w *Worker) Log(r Record) {
	select {
	case w.records <- r:
	default:
		slog.Warn("audit buffer full, dropping record", "action", r.Action)
	}
}

func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
	close(w.records)
}
