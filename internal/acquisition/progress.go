package acquisition

import (
	"log/slog"

	"github.com/dshills/manualrag/pkg/types"
)

// ProgressFunc receives stage transitions. It is advisory: its return and
// its panics are ignored, and a slow callback never delays acquisition.
type ProgressFunc func(types.ProgressEvent)

const progressBuffer = 16

// progressBus delivers events to one callback in order on its own
// goroutine. Events that do not fit the buffer are dropped.
type progressBus struct {
	events chan types.ProgressEvent
	logger *slog.Logger
}

func newProgressBus(fn ProgressFunc, logger *slog.Logger) *progressBus {
	if fn == nil {
		return &progressBus{logger: logger}
	}

	b := &progressBus{events: make(chan types.ProgressEvent, progressBuffer), logger: logger}
	go func() {
		for ev := range b.events {
			deliver(fn, ev, logger)
		}
	}()
	return b
}

func deliver(fn ProgressFunc, ev types.ProgressEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress_callback_panic", slog.String("stage", string(ev.Stage)), slog.Any("panic", r))
		}
	}()
	fn(ev)
}

func (b *progressBus) emit(stage types.Stage, detail string) {
	b.logger.Debug("acquisition_stage", slog.String("stage", string(stage)), slog.String("detail", detail))
	if b.events == nil {
		return
	}
	select {
	case b.events <- types.ProgressEvent{Stage: stage, Detail: detail}:
	default:
		b.logger.Debug("progress_event_dropped", slog.String("stage", string(stage)))
	}
}

// close stops delivery once queued events are handed out
func (b *progressBus) close() {
	if b.events != nil {
		close(b.events)
	}
}
