package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"chat-archive/constant"
	"chat-archive/entities"
	"chat-archive/pkg/metrics"
	"chat-archive/pkg/oops"
	"chat-archive/pkg/source"
	"chat-archive/pkg/tracing"
)

// run is the body of one worker goroutine. Cancellation of ctx means the
// worker was paused, stopped, deleted or shut down.
func (m *Manager) run(ctx context.Context, h *workerHandle, stream entities.Stream, platform Platform, resumeFrom *time.Time) {
	logger := zerolog.Ctx(ctx).With().
		Uint("stream_id", stream.ID).
		Str("url", stream.URL).
		Str("platform", platform.Kind().String()).
		Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := tracing.Start(ctx, "stream.worker",
		attribute.Int64("stream_id", int64(stream.ID)),
		attribute.String("platform", platform.Kind().String()),
	)
	store := context.WithoutCancel(ctx)

	last, err := m.consume(ctx, store, &stream, platform, resumeFrom)
	tracing.End(span, err)

	switch {
	case ctx.Err() != nil:
		m.recordResumePoint(store, stream.ID, last)
		metrics.WorkerExits.WithLabelValues("cancelled").Inc()
		logger.Info().Msg("stream worker cancelled")

	case err != nil:
		m.registry.release(stream.URL, h)
		m.finish(store, stream.ID, last, map[string]interface{}{
			"download_status": constant.DownloadStatusError,
			"error":           err.Error(),
		})
		metrics.WorkerExits.WithLabelValues("error").Inc()
		logger.Error().Stack().Err(err).Msg("stream worker failed")

	default:
		m.registry.release(stream.URL, h)
		m.finish(store, stream.ID, last, map[string]interface{}{
			"download_status": constant.DownloadStatusCompleted,
		})
		metrics.WorkerExits.WithLabelValues("completed").Inc()
		logger.Info().Msg("stream completed")
	}
}

// finish writes the final status of a worker that ended on its own. A pause
// that landed just before the end keeps the stream paused.
func (m *Manager) finish(ctx context.Context, id uint, last *time.Time, updates map[string]interface{}) {
	updated, err := m.repo.UpdateStreamIfDownloading(ctx, id, updates)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to record final stream status")
		return
	}
	if !updated {
		m.recordResumePoint(ctx, id, last)
	}
}

// recordResumePoint stores the last observed message time and, while the
// stream is paused, uses it as the resume point.
func (m *Manager) recordResumePoint(ctx context.Context, id uint, last *time.Time) {
	if last != nil {
		if err := m.repo.UpdateStream(ctx, id, map[string]interface{}{
			"last_message_timestamp": *last,
		}); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to record last message time")
		}
	}
	if err := m.repo.UpdateResumeTimestampIfPaused(ctx, id, last); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to record resume point")
	}
}

// consume pumps events from the source into the platform transformer until
// the source ends, fails or ctx is cancelled. It returns the time of the
// last event seen. Storage writes use store so they are never interrupted.
func (m *Manager) consume(ctx, store context.Context, stream *entities.Stream, platform Platform, resumeFrom *time.Time) (last *time.Time, err error) {
	chat, err := m.opener.Open(ctx, source.Request{
		URL:        stream.URL,
		Platform:   platform.Kind(),
		Groups:     platform.SourceGroups(),
		ResumeFrom: resumeFrom,
	})
	if err != nil {
		return nil, oops.New(err, "open chat for stream %d", stream.ID)
	}
	defer func() {
		if cerr := chat.Close(); cerr != nil {
			zerolog.Ctx(ctx).Warn().Err(cerr).Msg("failed to close chat source")
		}
	}()

	if err := m.saveInfo(store, stream.ID, chat.Info()); err != nil {
		return nil, oops.New(err, "save metadata of stream %d", stream.ID)
	}

	last = stream.LastMessageTimestamp
	transformer := platform.NewTransformer(m.repo, stream.ID, TransformerOptions{
		Batch: m.batch,
		AfterFlush: func(tx *gorm.DB) error {
			if last == nil {
				return nil
			}
			return tx.Model(&entities.Stream{}).
				Where("id = ?", stream.ID).
				UpdateColumn("last_message_timestamp", *last).Error
		},
	})
	defer func() {
		if cerr := transformer.Close(store); cerr != nil && err == nil {
			err = oops.New(cerr, "final flush of stream %d", stream.ID)
		}
	}()

	var failures int
	for {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		ev, err := chat.Next(ctx)
		if errors.Is(err, io.EOF) {
			return last, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, oops.New(err, "read chat of stream %d", stream.ID)
		}
		if ctx.Err() != nil {
			return last, ctx.Err()
		}

		if t, ok := ev.Time(); ok {
			last = &t
		}
		if res := transformer.Transform(store, ev); !res.OK() {
			failures++
			zerolog.Ctx(ctx).Debug().Err(res.Err).Int("failures", failures).Msg("event not stored")
		}
	}
}

func (m *Manager) saveInfo(ctx context.Context, id uint, info source.Info) error {
	updates := map[string]interface{}{}
	if info.Title != "" {
		updates["title"] = info.Title
	}
	if info.NativeID != "" {
		updates["stream_id"] = info.NativeID
	}
	if info.Status != "" {
		updates["status"] = info.Status
	}
	if info.Duration != nil {
		updates["duration"] = *info.Duration
	}
	if len(updates) == 0 {
		return nil
	}
	return m.repo.UpdateStream(ctx, id, updates)
}
