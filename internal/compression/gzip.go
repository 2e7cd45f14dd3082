// Package compression wraps the gzip codec used for server-side compression
// of uploads and transparent decompression on reads.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

var writerPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

// Compress gzips data in memory.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := writerPool.Get().(*gzip.Writer)
	defer writerPool.Put(zw)
	zw.Reset(&buf)

	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compressing content: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalising gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a gzip stream in memory.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing content: %w", err)
	}
	return out, nil
}
