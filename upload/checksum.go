package upload

import (
	"crypto/md5" //nolint:gosec // the wire protocol's checksum field is MD5
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const checksumReadSize = 4 * 1024

// FileMD5 computes the whole-file digest required by the small-file protocol.
// The file is streamed in fixed-size increments to bound memory use regardless
// of file size.
func FileMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	hash := md5.New() //nolint:gosec
	buf := make([]byte, checksumReadSize)
	if _, err := io.CopyBuffer(hash, file, buf); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
