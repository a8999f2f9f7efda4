package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crosslab/internal/blob"
)

// Stored lists the artifacts under the exporter prefix. A non-empty
// experimentID narrows the listing to that experiment's reports.
func (e *Exporter) Stored(ctx context.Context, experimentID string) ([]blob.Info, error) {
	prefix := e.key() + "/"
	if experimentID != "" {
		prefix = e.key("experiments", experimentID) + "/"
	}
	if prefix == "/" {
		prefix = ""
	}
	infos, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list artifacts %q: %w", prefix, err)
	}
	return infos, nil
}

// Read returns the contents of a stored artifact.
func (e *Exporter) Read(ctx context.Context, key string) (blob.Info, []byte, error) {
	if !e.owns(key) {
		return blob.Info{}, nil, fmt.Errorf("artifact %s: %w", key, blob.ErrNotFound)
	}
	return blob.ReadAll(ctx, e.store, key)
}

// URL returns a GET link for key valid for expiry. Drivers without signing
// report blob.ErrUnsupported.
func (e *Exporter) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, err := e.store.Head(ctx, key); err != nil {
		return "", err
	}
	return e.store.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}

// RemoveExperiment deletes every report written for experimentID and returns
// how many blobs were removed.
func (e *Exporter) RemoveExperiment(ctx context.Context, experimentID string) (int, error) {
	if experimentID == "" {
		return 0, errors.New("reports: experiment id is required")
	}
	infos, err := e.Stored(ctx, experimentID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		ok, err := e.store.Delete(ctx, info.Key)
		if err != nil {
			return removed, fmt.Errorf("delete artifact %s: %w", info.Key, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (e *Exporter) owns(key string) bool {
	return e.prefix == "" || strings.HasPrefix(key, e.prefix+"/")
}
