package upload

import (
	"context"
	"fmt"
)

// FileTransport is the wire surface toward the messaging platform's transfer
// endpoints. Implementations must not retry: the scheduler owns the retry
// budget and backoff schedule.
type FileTransport interface {
	SaveFilePart(ctx context.Context, fileID int64, part, totalParts int, data []byte) error
	SaveBigFilePart(ctx context.Context, fileID int64, part, totalParts int, data []byte) error
}

// PartUploader transfers exactly one chunk via the plan's wire protocol,
// with no internal retry.
type PartUploader interface {
	UploadPart(ctx context.Context, fileID int64, chunk Chunk) error
}

type transportPartUploader struct {
	transport FileTransport
	plan      Plan
	partLimit int
}

// NewPartUploader returns a PartUploader bound to the given plan.
func NewPartUploader(transport FileTransport, plan Plan, cfg Config) PartUploader {
	return &transportPartUploader{
		transport: transport,
		plan:      plan,
		partLimit: cfg.PartLimit(plan.Tier),
	}
}

// UploadPart checks the chunk invariants and hands the bytes to the wire.
// A single-part file needs no part transfer at all: it is attached to the
// outbound message directly, so the transfer endpoints are only invoked when
// the plan has more than one part.
func (u *transportPartUploader) UploadPart(ctx context.Context, fileID int64, chunk Chunk) error {
	// SelectPlan is the primary gate; this re-check guards against plans
	// constructed by hand.
	if u.plan.TotalParts > u.partLimit {
		return fmt.Errorf("%w: %d parts, limit %d", ErrPartLimitExceeded, u.plan.TotalParts, u.partLimit)
	}
	if len(chunk.Data) == 0 {
		return fmt.Errorf("%w: part %d", ErrEmptyChunk, chunk.Index+1)
	}
	if int64(len(chunk.Data)) > u.plan.PartSize {
		return fmt.Errorf("%w: part %d is %d bytes, part size is %d",
			ErrOversizedChunk, chunk.Index+1, len(chunk.Data), u.plan.PartSize)
	}
	if !chunk.Last && int64(len(chunk.Data)) != u.plan.PartSize {
		return fmt.Errorf("%w: non-final part %d is %d bytes, expected %d",
			ErrOversizedChunk, chunk.Index+1, len(chunk.Data), u.plan.PartSize)
	}

	if u.plan.TotalParts == 1 {
		return nil
	}

	if u.plan.Protocol == ProtocolBig {
		return u.transport.SaveBigFilePart(ctx, fileID, chunk.Index, u.plan.TotalParts, chunk.Data)
	}
	return u.transport.SaveFilePart(ctx, fileID, chunk.Index, u.plan.TotalParts, chunk.Data)
}
