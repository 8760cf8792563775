package visual

import (
	"context"
	"log/slog"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/moderation/cachestore"
)

// Wraps another labeler with a store of previous results, keyed by artifact URL. Only successful results are remembered; failures always go back to the inner labeler next time.
type CachingLabeler struct {
	Inner  moderation.ImageLabeler
	Store  cachestore.LabelStore
	Logger *slog.Logger
}

var _ moderation.ImageLabeler = (*CachingLabeler)(nil)

func NewCachingLabeler(inner moderation.ImageLabeler, store cachestore.LabelStore) *CachingLabeler {
	return &CachingLabeler{
		Inner:  inner,
		Store:  store,
		Logger: slog.Default().With("labeler", "cache"),
	}
}

func (cl *CachingLabeler) GetLabels(ctx context.Context, url string) moderation.ExtractionResult {
	logger := cl.Logger
	if logger == nil {
		logger = slog.Default()
	}

	labels, found, err := cl.Store.Lookup(ctx, url)
	switch {
	case err != nil:
		// unreadable entries are treated as a miss and overwritten below
		labelCacheCount.WithLabelValues("error").Inc()
		logger.Warn("label cache read failed", "url", url, "err", err)
	case found:
		labelCacheCount.WithLabelValues("hit").Inc()
		return moderation.ExtractionResult{Success: true, Labels: labels}
	default:
		labelCacheCount.WithLabelValues("miss").Inc()
	}

	res := cl.Inner.GetLabels(ctx, url)
	if !res.Success {
		return res
	}
	if err := cl.Store.Remember(ctx, url, res.Labels); err != nil {
		logger.Warn("label cache write failed", "url", url, "err", err)
	}
	return res
}
