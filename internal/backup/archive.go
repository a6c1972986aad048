// Package backup archives the result repository. An archive is a single
// file: one plain-text JSON header line followed by the gzip-compressed
// database snapshot, checksummed so a damaged archive is rejected before
// it can overwrite live results.
package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion identifies the archive layout.
const FormatVersion = 1

// MaxRestoreSize caps the decompressed database size on restore (2GB).
const MaxRestoreSize = 2 << 30

// Header is the plain-text first line of an archive.
type Header struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
	Studies   int       `json:"studies"`
	Cases     int       `json:"cases"`
	DBBytes   int64     `json:"db_bytes"`
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// WriteArchive writes the database snapshot to path with the study and
// case counts recorded in the header.
func WriteArchive(path string, db []byte, studies, cases int) (*Header, error) {
	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(db); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Checksum:  checksumOf(compressed.Bytes()),
		Studies:   studies,
		Cases:     cases,
		DBBytes:   int64(len(db)),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(headerBytes, '\n')); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return nil, fmt.Errorf("writing payload: %w", err)
	}
	return &header, nil
}

// ReadHeader reads just the header line of an archive.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}
	return &header, nil
}

// readPayload returns the verified header and compressed payload.
func readPayload(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading payload: %w", err)
	}
	if got := checksumOf(payload); got != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: header %s, payload %s", header.Checksum, got)
	}
	return &header, payload, nil
}

// VerifyChecksum checks archive integrity without decompressing.
func VerifyChecksum(path string) error {
	_, _, err := readPayload(path)
	return err
}

// Extract verifies and decompresses an archive's database snapshot to
// destPath.
func Extract(path, destPath string) (*Header, error) {
	header, payload, err := readPayload(path)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("opening gzip payload: %w", err)
	}
	defer gzr.Close()

	db, err := io.ReadAll(io.LimitReader(gzr, MaxRestoreSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	if int64(len(db)) > MaxRestoreSize {
		return nil, fmt.Errorf("snapshot exceeds maximum restore size of %d bytes", int64(MaxRestoreSize))
	}
	if int64(len(db)) != header.DBBytes {
		return nil, fmt.Errorf("snapshot size mismatch: header says %d bytes, got %d", header.DBBytes, len(db))
	}

	if err := os.WriteFile(destPath, db, 0644); err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}
	return header, nil
}
