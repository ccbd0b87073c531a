// Package hash computes the content hashes Apollo uses to dedupe and
// identify tracks independent of their file path.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

const bufSize = 64 * 1024

// File streams path through SHA-256 in fixed-size chunks and returns the
// hex-encoded digest. It never loads the whole file into memory, so it is
// safe to call concurrently across many large audio files.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Reader(f)
}

// Reader hashes r to completion.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
