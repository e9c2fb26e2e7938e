package upload

import "fmt"

// FileReference is the opaque descriptor produced once every part is
// acknowledged. It is attached to exactly one outbound message and then
// discarded; it has no independent persistence.
type FileReference interface {
	FileID() int64
	PartCount() int
	DisplayName() string

	// sealed: the two wire protocols define the only valid variants.
	fileReference()
}

// SmallFileReference describes a file uploaded via the small-file protocol.
// It always carries the whole-file checksum.
type SmallFileReference struct {
	ID          int64
	Parts       int
	Name        string
	MD5Checksum string
}

// FileID ...
func (r SmallFileReference) FileID() int64 { return r.ID }

// PartCount ...
func (r SmallFileReference) PartCount() int { return r.Parts }

// DisplayName ...
func (r SmallFileReference) DisplayName() string { return r.Name }

func (r SmallFileReference) fileReference() {}

// BigFileReference describes a file uploaded via the big-file protocol.
// The big-file transfer format has no checksum field.
type BigFileReference struct {
	ID    int64
	Parts int
	Name  string
}

// FileID ...
func (r BigFileReference) FileID() int64 { return r.ID }

// PartCount ...
func (r BigFileReference) PartCount() int { return r.Parts }

// DisplayName ...
func (r BigFileReference) DisplayName() string { return r.Name }

func (r BigFileReference) fileReference() {}

// BuildReference assembles the reference for a fully acknowledged upload.
// Pure, no I/O. The checksum is present if and only if the plan required one.
func BuildReference(plan Plan, fileID int64, name string, checksum string) (FileReference, error) {
	if plan.RequiresChecksum {
		if checksum == "" {
			return nil, fmt.Errorf("small-file reference requires a checksum")
		}
		return SmallFileReference{
			ID:          fileID,
			Parts:       plan.TotalParts,
			Name:        name,
			MD5Checksum: checksum,
		}, nil
	}

	if checksum != "" {
		return nil, fmt.Errorf("big-file reference cannot carry a checksum")
	}
	return BigFileReference{
		ID:    fileID,
		Parts: plan.TotalParts,
		Name:  name,
	}, nil
}
