package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"orderflow/internal/model"

	"github.com/rs/zerolog"
)

// fileArchiver writes snapshots into a local directory.
type fileArchiver struct {
	dir    string
	logger zerolog.Logger
}

// NewFileArchiver creates an archiver writing into dir, creating it if needed.
func NewFileArchiver(dir string, logger zerolog.Logger) (Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}
	return &fileArchiver{
		dir:    dir,
		logger: logger.With().Str("component", "file-archiver").Logger(),
	}, nil
}

// Archive writes the snapshot through a temp file so readers never see a
// partial archive.
func (a *fileArchiver) Archive(ctx context.Context, snapshot *model.OrderResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(snapshot)
	if err != nil {
		return err
	}

	path := filepath.Join(a.dir, ObjectName(snapshot.ID))
	tmp, err := os.CreateTemp(a.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	a.logger.Info().
		Str("order_id", snapshot.ID.String()).
		Str("file", path).
		Msg("order snapshot archived")

	return nil
}
