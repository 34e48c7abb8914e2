package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/entities"
	"chat-archive/pkg/source"
	"chat-archive/repository"
)

// Manager owns the ingestion workers. Every transition of a stream URL runs
// under that URL's registry lock.
type Manager struct {
	repo     repository.StreamRepository
	opener   source.Opener
	registry *Registry
	batch    config.Batch

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager whose workers inherit ctx's values (logger)
// and are cancelled by Shutdown.
func NewManager(ctx context.Context, repo repository.StreamRepository, opener source.Opener, registry *Registry, batch config.Batch) *Manager {
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Manager{
		repo:     repo,
		opener:   opener,
		registry: registry,
		batch:    batch,
		base:     base,
		cancel:   cancel,
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start creates a stream for url and launches its worker.
func (m *Manager) Start(ctx context.Context, url string) (*entities.Stream, error) {
	platform, err := DetectPlatform(url)
	if err != nil {
		return nil, err
	}

	unlock := m.registry.Lock(url)
	defer unlock()

	if m.registry.Running(url) {
		return nil, ErrAlreadyProcessing
	}
	existing, err := m.repo.FindActiveStreamByURL(ctx, url)
	if err == nil {
		return nil, fmt.Errorf("%w: stream %d is %s", ErrAlreadyProcessing, existing.ID, existing.DownloadStatus)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	stream := &entities.Stream{
		URL:            url,
		Platform:       platform.Kind(),
		DownloadStatus: constant.DownloadStatusDownloading,
	}
	if err := m.repo.CreateStream(ctx, stream); err != nil {
		return nil, err
	}

	m.spawn(stream, platform, nil)
	zerolog.Ctx(ctx).Info().Uint("stream_id", stream.ID).Str("url", url).Msg("stream started")
	return stream, nil
}

// Pause stops the running worker and keeps the stream resumable. It returns
// once the worker has recorded its resume point.
func (m *Manager) Pause(ctx context.Context, id uint) error {
	stream, err := m.find(ctx, id)
	if err != nil {
		return err
	}

	unlock := m.registry.Lock(stream.URL)
	defer unlock()

	h, ok := m.registry.take(stream.URL)
	if !ok {
		return ErrNotRunning
	}
	if err := m.repo.UpdateStream(ctx, id, map[string]interface{}{
		"download_status": constant.DownloadStatusPaused,
	}); err != nil {
		h.cancel()
		return err
	}
	h.cancel()
	return waitWorker(ctx, h)
}

// Resume restarts a paused stream from its resume point.
func (m *Manager) Resume(ctx context.Context, id uint) error {
	stream, err := m.find(ctx, id)
	if err != nil {
		return err
	}

	unlock := m.registry.Lock(stream.URL)
	defer unlock()

	if m.registry.Running(stream.URL) {
		return ErrAlreadyRunning
	}
	// Reload under the lock; a transition may have finished while waiting.
	if stream, err = m.find(ctx, id); err != nil {
		return err
	}
	if stream.DownloadStatus != constant.DownloadStatusPaused {
		return fmt.Errorf("%w: status is %s", ErrInvalidState, stream.DownloadStatus)
	}
	platform, err := PlatformFor(stream.Platform)
	if err != nil {
		return err
	}

	resumeFrom := stream.ResumeTimestamp
	if err := m.repo.UpdateStream(ctx, id, map[string]interface{}{
		"download_status":  constant.DownloadStatusDownloading,
		"resume_timestamp": nil,
	}); err != nil {
		return err
	}
	stream.DownloadStatus = constant.DownloadStatusDownloading

	m.spawn(stream, platform, resumeFrom)
	zerolog.Ctx(ctx).Info().Uint("stream_id", id).Msg("stream resumed")
	return nil
}

// Stop ends the stream for good. Stopping a stream that is not running
// only updates its status.
func (m *Manager) Stop(ctx context.Context, id uint) error {
	stream, err := m.find(ctx, id)
	if err != nil {
		return err
	}

	unlock := m.registry.Lock(stream.URL)
	defer unlock()

	if h, ok := m.registry.take(stream.URL); ok {
		h.cancel()
		if err := waitWorker(ctx, h); err != nil {
			return err
		}
	}

	return m.repo.UpdateStream(ctx, id, map[string]interface{}{
		"download_status":  constant.DownloadStatusCompleted,
		"resume_timestamp": nil,
	})
}

// Delete stops the worker, if any, and removes the stream with all of its
// messages.
func (m *Manager) Delete(ctx context.Context, id uint) error {
	stream, err := m.find(ctx, id)
	if err != nil {
		return err
	}

	unlock := m.registry.Lock(stream.URL)
	defer unlock()

	if h, ok := m.registry.take(stream.URL); ok {
		h.cancel()
		if err := waitWorker(ctx, h); err != nil {
			return err
		}
	}

	platform, err := PlatformFor(stream.Platform)
	if err != nil {
		return err
	}
	return m.repo.DeleteStream(ctx, id, platform.Model())
}

// Recover reconciles streams left downloading by a previous process.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	streams, err := m.repo.ListStreamsByDownloadStatus(ctx, constant.DownloadStatusDownloading)
	if err != nil {
		return 0, err
	}

	for _, s := range streams {
		if m.registry.Running(s.URL) {
			continue
		}

		updates := map[string]interface{}{}
		switch status := deref(s.Status); status {
		case constant.StreamStatusLive:
			updates["download_status"] = constant.DownloadStatusPaused
			if s.ResumeTimestamp == nil && s.LastMessageTimestamp != nil {
				updates["resume_timestamp"] = *s.LastMessageTimestamp
			}
		case constant.StreamStatusPast:
			updates["download_status"] = constant.DownloadStatusCompleted
			updates["resume_timestamp"] = nil
		default:
			updates["download_status"] = constant.DownloadStatusError
			updates["error"] = "interrupted before the stream metadata was known"
		}

		if err := m.repo.UpdateStream(ctx, s.ID, updates); err != nil {
			return 0, err
		}
		zerolog.Ctx(ctx).Info().
			Uint("stream_id", s.ID).
			Str("url", s.URL).
			Interface("download_status", updates["download_status"]).
			Msg("recovered stream on startup")
	}

	return len(streams), nil
}

// Wait blocks until every worker has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all workers and waits up to timeout for them to exit.
// Streams keep their downloading status and are reconciled by Recover on
// the next start.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.registry.drain()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("workers still running after %s", timeout)
	}
}

func (m *Manager) find(ctx context.Context, id uint) (*entities.Stream, error) {
	stream, err := m.repo.FindStreamByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrStreamNotFound, id)
	}
	return stream, err
}

func (m *Manager) spawn(stream *entities.Stream, platform Platform, resumeFrom *time.Time) {
	ctx, cancel := context.WithCancel(m.base)
	h := &workerHandle{streamID: stream.ID, cancel: cancel, done: make(chan struct{})}
	m.registry.register(stream.URL, h)

	snapshot := *stream
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer cancel()
		m.run(ctx, h, snapshot, platform, resumeFrom)
	}()
}

func waitWorker(ctx context.Context, h *workerHandle) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
