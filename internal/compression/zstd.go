// Package compression wraps zstd for streaming blob transfer.
package compression

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Level maps the user-facing 1..4 scale onto zstd encoder levels.
func Level(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 2:
		return zstd.SpeedDefault
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

type Compressor struct {
	level zstd.EncoderLevel
}

func NewCompressor(level int) *Compressor {
	return &Compressor{level: Level(level)}
}

// Compress streams r through a zstd encoder into w and returns the number of
// uncompressed bytes read.
func (c *Compressor) Compress(w io.Writer, r io.Reader) (int64, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(c.level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(enc, r)
	if err != nil {
		enc.Close()
		return n, err
	}
	return n, enc.Close()
}

// Decompress returns a reader yielding the decoded stream. Closing it releases
// the decoder; it does not close r.
func (c *Compressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
