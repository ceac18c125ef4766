// Package fingerprint computes content digests used for exact-match duplicate
// detection. Hashing is skipped above a size ceiling because full-content
// hashing of very large files is too slow for an interactive flow; callers
// treat the result as best-effort.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// DefaultCeiling is the size above which Compute declines to hash.
const DefaultCeiling int64 = 20 << 20

const copyWindow = 64 * 1024

// Digest is a hex-encoded SHA-256 over full file content. The zero value
// means indeterminate: hashing was skipped or failed.
type Digest string

// Indeterminate is the zero digest.
const Indeterminate Digest = ""

// IsIndeterminate reports whether no usable digest was produced.
func (d Digest) IsIndeterminate() bool { return d == "" }

func (d Digest) String() string { return string(d) }

// Compute hashes up to size bytes from r. It returns the zero Digest without
// reading when size exceeds ceiling, and also on read errors: duplicate
// detection is a nice-to-have, never a reason to fail the pipeline.
// Cancellation is honored between 64 KiB copy windows.
func Compute(ctx context.Context, r io.Reader, size, ceiling int64) Digest {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if size < 0 || size > ceiling {
		return ""
	}

	h := sha256.New()
	buf := make([]byte, copyWindow)
	var read int64
	for {
		select {
		case <-ctx.Done():
			return ""
		default:
		}
		n, err := r.Read(buf)
		if n > 0 {
			read += int64(n)
			if read > size {
				// Input grew past its declared size mid-read; the digest
				// would not describe a stable object.
				return ""
			}
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return ""
		}
	}
	if read != size {
		return ""
	}
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// ComputeFile opens path and hashes it subject to the same ceiling rules.
func ComputeFile(ctx context.Context, path string, ceiling int64) Digest {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if info.Size() > ceiling {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	return Compute(ctx, f, info.Size(), ceiling)
}

// Sum hashes an in-memory payload unconditionally. The asset service uses it
// for its own authoritative dedup check on assembled uploads.
func Sum(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}
