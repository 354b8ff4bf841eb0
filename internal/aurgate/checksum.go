package aurgate

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// ArchiveDigest identifies the exact bytes of a staged archive.
type ArchiveDigest struct {
	Sum  string
	Size int64
}

// ComputeChecksum returns the hex BLAKE3 sum (32-byte output, no key) and size of path.
func ComputeChecksum(path string) (ArchiveDigest, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArchiveDigest{}, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New(32, nil)
	n, err := io.Copy(h, f)
	if err != nil {
		return ArchiveDigest{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return ArchiveDigest{Sum: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}
