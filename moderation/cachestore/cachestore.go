package cachestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// LabelStore is keyed by artifact URL. A stored empty label list is a hit, distinct from a miss.
type LabelStore interface {
	Lookup(ctx context.Context, url string) (labels []string, found bool, err error)
	Remember(ctx context.Context, url string, labels []string) error
	Forget(ctx context.Context, url string) error
}

// URLs are unbounded in length; keys are fixed-size.
func entryKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "labels:" + hex.EncodeToString(sum[:])
}

func cloneLabels(labels []string) []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}
