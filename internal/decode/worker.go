package decode

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/smazurov/qrgrabber/internal/imaging"
	"github.com/smazurov/qrgrabber/internal/mailbox"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// ResultFunc receives every successful decode.
type ResultFunc func(d Decoded)

// Worker decodes the latest submitted bitmap on its own goroutine. Bitmaps
// submitted while a decode is running replace each other, so the decoder
// always sees the freshest frame.
type Worker struct {
	decoder  Decoder
	onResult ResultFunc
	logger   *slog.Logger

	slot *mailbox.Slot[*platform.Bitmap]
	wg   sync.WaitGroup
	once sync.Once
}

// NewWorker starts a worker. Call Close to stop it.
func NewWorker(decoder Decoder, onResult ResultFunc, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		decoder:  decoder,
		onResult: onResult,
		logger:   logger,
		slot:     mailbox.New[*platform.Bitmap](),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit queues bm for decoding without blocking. The worker may read bm
// after Submit returns, so the caller must not reuse its Data.
func (w *Worker) Submit(bm *platform.Bitmap) {
	if bm == nil {
		return
	}
	w.slot.Put(bm)
}

// Close stops the worker and waits for an in-flight decode to finish.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.slot.Close()
		w.wg.Wait()
	})
}

// Stats returns mailbox counters. Dropped counts frames that were replaced
// before the decoder got to them.
func (w *Worker) Stats() mailbox.Stats {
	return w.slot.Stats()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		bm, ok := w.slot.Take()
		if !ok {
			return
		}
		w.decodeOne(bm)
	}
}

func (w *Worker) decodeOne(bm *platform.Bitmap) {
	img, err := imaging.ToImage(bm)
	if err != nil {
		w.logger.Debug("Skipping undecodable frame", "format", bm.Format, "error", err)
		return
	}
	d, err := w.decoder.Decode(img)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			w.logger.Debug("Barcode decode failed", "error", err)
		}
		return
	}
	if w.onResult != nil {
		w.onResult(d)
	}
}
