package upload

import "fmt"

// Protocol identifies the wire procedure used to assemble parts server-side.
type Protocol int

const (
	// ProtocolSmall is the small-file protocol. It requires a whole-file checksum.
	ProtocolSmall Protocol = iota
	// ProtocolBig is the big-file protocol. Its transfer format has no checksum field.
	ProtocolBig
)

func (p Protocol) String() string {
	if p == ProtocolBig {
		return "big"
	}
	return "small"
}

// Tier classifies the account, bounding the maximum part count of one upload.
type Tier int

const (
	// TierRegular ...
	TierRegular Tier = iota
	// TierPremium ...
	TierPremium
)

func (t Tier) String() string {
	if t == TierPremium {
		return "premium"
	}
	return "regular"
}

// Plan is the immutable chunking decision for one upload attempt.
type Plan struct {
	FileSize         int64
	PartSize         int64
	TotalParts       int
	Protocol         Protocol
	Tier             Tier
	RequiresChecksum bool
}

// SelectPlan validates the file size against the account tier and decides the
// wire protocol. The big-file protocol is chosen when the total transferred
// part volume (TotalParts * PartSize) exceeds the threshold; the basis is the
// padded volume, not the raw file size. All validation happens here, before
// any chunk is read or uploaded.
func SelectPlan(fileSize int64, tier Tier, cfg Config) (Plan, error) {
	if fileSize <= 0 {
		return Plan{}, fmt.Errorf("%w: file size must be positive, got %d", ErrRejectedPlan, fileSize)
	}

	totalParts := int((fileSize + cfg.PartSize - 1) / cfg.PartSize)
	if limit := cfg.PartLimit(tier); totalParts > limit {
		return Plan{}, fmt.Errorf("%w: %d parts, %s tier allows %d", ErrPartLimitExceeded, totalParts, tier, limit)
	}

	protocol := ProtocolSmall
	if int64(totalParts)*cfg.PartSize > cfg.BigFileThreshold {
		protocol = ProtocolBig
	}

	return Plan{
		FileSize:         fileSize,
		PartSize:         cfg.PartSize,
		TotalParts:       totalParts,
		Protocol:         protocol,
		Tier:             tier,
		RequiresChecksum: protocol == ProtocolSmall,
	}, nil
}

// LastPartSize returns the byte length of the final part. It is never zero.
func (p Plan) LastPartSize() int64 {
	if remainder := p.FileSize % p.PartSize; remainder != 0 {
		return remainder
	}
	return p.PartSize
}
