package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ledger-service/internal/domain"
)

// SnapshotArchiver writes balance snapshots as JSON objects under a key prefix.
type SnapshotArchiver struct {
	store  Service
	bucket string
	prefix string
}

func NewSnapshotArchiver(store Service, bucket, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Archive stores the snapshot at <prefix>/<RFC3339 timestamp>.json.
func (a *SnapshotArchiver) Archive(ctx context.Context, snapshot domain.BalanceSnapshot) (string, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return a.store.PutObject(ctx, a.bucket, a.key(snapshot.TakenAt), bytes.NewReader(body), "application/json")
}

// List returns the archived snapshot objects.
func (a *SnapshotArchiver) List(ctx context.Context) ([]ObjectInfo, error) {
	prefix := a.prefix
	if prefix != "" {
		prefix += "/"
	}
	return a.store.ListObjects(ctx, a.bucket, prefix)
}

func (a *SnapshotArchiver) key(takenAt time.Time) string {
	name := takenAt.UTC().Format("20060102T150405.000000000Z") + ".json"
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}
