// Package archive keeps gzipped JSON snapshots of orders removed through
// the administrative delete path.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"orderflow/internal/model"

	"github.com/google/uuid"
)

// Archiver stores a snapshot of an order before it is deleted.
type Archiver interface {
	Archive(ctx context.Context, snapshot *model.OrderResponse) error
}

// ObjectName returns the file or object name for an order snapshot.
func ObjectName(orderID uuid.UUID) string {
	return orderID.String() + ".json.gz"
}

// Encode serialises a snapshot as gzipped JSON.
func Encode(snapshot *model.OrderResponse) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snapshot); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*model.OrderResponse, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	var snapshot model.OrderResponse
	if err := json.NewDecoder(zr).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}
