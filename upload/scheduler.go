// Package upload implements the large-file upload pipeline: a file is split
// into fixed-size parts, delivered over the platform's part-transfer
// endpoints with bounded concurrency and per-part retries, and assembled into
// a FileReference the message layer can attach to an outbound message.
package upload

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// LocalFile describes an already-downloaded file handed over by the media
// extraction layer. The file must exist on local storage and stay unchanged
// for the duration of the upload attempt.
type LocalFile struct {
	Path        string
	Size        int64
	DisplayName string
	Tier        Tier
}

// Progress is emitted after each acknowledged part.
type Progress struct {
	UploadedParts int
	TotalParts    int
	UploadedBytes int64
	TotalBytes    int64
}

// FileIDGenerator produces the random 64-bit identifier of one upload.
type FileIDGenerator func() int64

// RandomFileID is the default FileIDGenerator.
func RandomFileID() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.BigEndian.Uint64(b[:]))
}

// Engine drives part uploads over all chunk indices with bounded concurrency
// and per-part retry with exponential backoff. The upload either fully
// succeeds, yielding a FileReference, or fails as a unit.
type Engine struct {
	cfg       Config
	transport FileTransport
	logger    log.Logger
	newFileID FileIDGenerator
	events    chan<- Progress
	stats     *Stats
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithFileIDGenerator replaces the random file identifier source. Used by
// tests to make uploads deterministic.
func WithFileIDGenerator(gen FileIDGenerator) EngineOption {
	return func(e *Engine) {
		e.newFileID = gen
	}
}

// WithProgressChannel sets the default progress event channel. Sends never
// block: an event is dropped when the channel is full.
func WithProgressChannel(events chan<- Progress) EngineOption {
	return func(e *Engine) {
		e.events = events
	}
}

// NewEngine creates an upload engine on top of the given wire transport.
func NewEngine(cfg Config, transport FileTransport, logger log.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		newFileID: RandomFileID,
		stats:     NewStats(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the engine's upload statistics.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Upload delivers the file and builds its reference. See UploadWithProgress.
func (e *Engine) Upload(ctx context.Context, file LocalFile) (FileReference, error) {
	return e.UploadWithProgress(ctx, file, e.events)
}

// UploadWithProgress delivers the file, emitting progress events on the given
// channel. On success the returned reference carries the whole-file checksum
// when the selected protocol requires one. On failure no reference exists:
// partially uploaded parts are abandoned, since the protocol offers no
// server-side cleanup call.
func (e *Engine) UploadWithProgress(ctx context.Context, file LocalFile, events chan<- Progress) (FileReference, error) {
	plan, err := SelectPlan(file.Size, file.Tier, e.cfg)
	if err != nil {
		return nil, err
	}

	source, err := OpenFileChunkSource(file.Path, plan)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = source.Close()
	}()

	fileID := e.newFileID()
	uploader := NewPartUploader(e.transport, plan, e.cfg)

	e.logger.Debugf("Uploading %q: %d bytes, %d part(s), %s protocol",
		file.DisplayName, plan.FileSize, plan.TotalParts, plan.Protocol)

	if err := e.uploadParts(ctx, plan, fileID, source, uploader, events); err != nil {
		return nil, err
	}

	e.logger.Debugf("Uploaded %s in %d part(s), average part time %v",
		units.BytesSize(float64(e.stats.UploadedBytes())),
		e.stats.FinishedParts(), e.stats.Average().Round(time.Millisecond))

	checksum := ""
	if plan.RequiresChecksum {
		checksum, err = FileMD5(file.Path)
		if err != nil {
			return nil, fmt.Errorf("compute checksum: %w", err)
		}
	}

	return BuildReference(plan, fileID, file.DisplayName, checksum)
}

type partResult struct {
	index int
	bytes int64
	err   error
}

// uploadParts fans out over all part indices. The semaphore admits at most
// MaxConcurrentParts uploads at a time; a finished part immediately admits
// the next pending one. On the first permanent part failure the whole upload
// fails; in-flight siblings finish naturally and their results are discarded
// with the buffered channel.
func (e *Engine) uploadParts(ctx context.Context, plan Plan, fileID int64, source ChunkSource, uploader PartUploader, events chan<- Progress) error {
	results := make(chan partResult, plan.TotalParts)
	semaphore := make(chan struct{}, e.cfg.MaxConcurrentParts)

	for i := 0; i < plan.TotalParts; i++ {
		go func(index int) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			bytes, err := e.uploadPartWithRetry(ctx, plan, fileID, index, source, uploader)
			results <- partResult{index: index, bytes: bytes, err: err}
		}(i)
	}

	uploadedParts := 0
	uploadedBytes := int64(0)
	for completed := 0; completed < plan.TotalParts; completed++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload cancelled while waiting for parts: %w", ctx.Err())
		case result := <-results:
			if result.err != nil {
				return result.err
			}
			uploadedParts++
			uploadedBytes += result.bytes
			e.emitProgress(events, Progress{
				UploadedParts: uploadedParts,
				TotalParts:    plan.TotalParts,
				UploadedBytes: uploadedBytes,
				TotalBytes:    plan.FileSize,
			})
		}
	}

	return nil
}

func (e *Engine) uploadPartWithRetry(ctx context.Context, plan Plan, fileID int64, index int, source ChunkSource, uploader PartUploader) (int64, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("part %d upload cancelled: %w", index+1, ctx.Err())
		default:
		}

		// Re-read on every attempt: chunks are not retained after a failed
		// call, and the same index always yields the same bytes.
		chunk, err := source.ReadChunk(index)
		if err != nil {
			return 0, err
		}

		start := time.Now()
		err = uploader.UploadPart(ctx, fileID, chunk)
		if err == nil {
			took := time.Since(start)
			e.stats.Update(took, int64(len(chunk.Data)))
			e.logger.Debugf("Part %d/%d acknowledged in %v (%d part(s) done, avg %v)",
				index+1, plan.TotalParts, took.Round(time.Millisecond),
				e.stats.FinishedParts(), e.stats.Average().Round(time.Millisecond))
			return int64(len(chunk.Data)), nil
		}

		if !retryable(err) {
			return 0, fmt.Errorf("part %d: %w", index+1, err)
		}

		lastErr = err
		e.logger.Warnf("Part %d attempt %d/%d failed: %v", index+1, attempt, e.cfg.MaxRetries, err)

		if attempt == e.cfg.MaxRetries {
			break
		}

		// Exponential backoff, suspending only this part's task.
		backoff := time.Duration(1<<(attempt-1)) * e.cfg.RetryBackoffBase
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, fmt.Errorf("part %d upload cancelled: %w", index+1, ctx.Err())
		case <-timer.C:
		}
	}

	return 0, fmt.Errorf("part %d failed after %d attempts: %w", index+1, e.cfg.MaxRetries, lastErr)
}

// emitProgress is called from the collector loop only, so events are ordered
// and nothing is sent after Upload returns.
func (e *Engine) emitProgress(events chan<- Progress, p Progress) {
	if events == nil {
		return
	}
	select {
	case events <- p:
	default:
	}
}
