package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/structdyn/boltlab/internal/store"
)

// FilePrefix names backup archives; the timestamp in the file name makes
// lexical order chronological.
const FilePrefix = "boltlab-backup-"

// GeneratePath returns a timestamped archive path inside dir.
func GeneratePath(dir string) string {
	name := FilePrefix + time.Now().UTC().Format("20060102-150405") + ".db.gz"
	return filepath.Join(dir, name)
}

// Create snapshots the repository and writes it as an archive at
// outputPath.
func Create(ctx context.Context, repo *store.Repository, outputPath string) (*Header, error) {
	stats, err := repo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading repository stats: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	// VACUUM INTO refuses to overwrite, so the scratch file must be gone.
	snapPath := outputPath + ".snapshot"
	os.Remove(snapPath)
	defer os.Remove(snapPath)

	if err := repo.Snapshot(ctx, snapPath); err != nil {
		return nil, err
	}
	db, err := os.ReadFile(snapPath)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	return WriteArchive(outputPath, db, stats.Studies, stats.Cases)
}

// Restore replaces the database at dbPath with the snapshot in the
// archive. The repository must not be open. Stale WAL and SHM sidecar
// files are removed so the restored database starts clean.
func Restore(archivePath, dbPath string) (*Header, error) {
	tmpPath := dbPath + ".restore"
	header, err := Extract(archivePath, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, dbPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("replacing database: %w", err)
	}
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
	return header, nil
}
