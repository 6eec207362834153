package fallback_v0

import (
	"bytes"
	"compress/gzip"
	"io"
)

// GZipCompressor handles attachment files the old layout stored gzipped.
type GZipCompressor struct{}

func (GZipCompressor) Compress(dec []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)

	if _, err := zw.Write(dec); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (GZipCompressor) Decompress(cmp []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(cmp))
	if err != nil {
		return nil, err
	}

	dec, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}

	if err := zr.Close(); err != nil {
		return nil, err
	}

	return dec, nil
}
