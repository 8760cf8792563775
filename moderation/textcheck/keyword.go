package textcheck

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/moderation/keyword"
	"github.com/tipjar-social/contentcheck/moderation/setstore"
)

const (
	BadWordsSet  = "bad-words"
	BadLabelsSet = "bad-labels"
)

// Offline text verifier which matches title and description tokens against a word list, and image labels against a label list. A clean submission scores 1.0, and every distinct hit lowers the score by PenaltyPerHit.
type KeywordVerifier struct {
	Sets          setstore.SetStore
	PenaltyPerHit float64
	Logger        *slog.Logger
}

var _ moderation.TextVerifier = (*KeywordVerifier)(nil)

func NewKeywordVerifier(sets setstore.SetStore) *KeywordVerifier {
	return &KeywordVerifier{
		Sets:          sets,
		PenaltyPerHit: 0.5,
		Logger:        slog.Default().With("verifier", "keyword"),
	}
}

func (v *KeywordVerifier) Verify(ctx context.Context, title, description string, labels []string) moderation.VerificationResult {
	hits, err := v.hits(ctx, title, description, labels)
	if err != nil {
		verifierCount.WithLabelValues("keyword", "error").Inc()
		v.logger().Warn("keyword-verify-failed", "err", err)
		return moderation.VerificationResult{Success: false}
	}
	verifierCount.WithLabelValues("keyword", "ok").Inc()
	if len(hits) > 0 {
		v.logger().Info("keyword-verify-hits", "hits", hits)
	}
	return moderation.VerificationResult{
		Success:    true,
		Confidence: clamp(1 - float64(len(hits))*v.PenaltyPerHit),
	}
}

func (v *KeywordVerifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// Distinct matching tokens and labels, in the order first seen
func (v *KeywordVerifier) hits(ctx context.Context, title, description string, labels []string) ([]string, error) {
	seen := make(map[string]bool)
	var hits []string

	check := func(set, tok string) error {
		if tok == "" || seen[set+"/"+tok] {
			return nil
		}
		seen[set+"/"+tok] = true
		ok, err := v.Sets.InSet(ctx, set, tok)
		if err != nil {
			return fmt.Errorf("checking set %s: %w", set, err)
		}
		if ok {
			hits = append(hits, tok)
		}
		return nil
	}

	for _, text := range []string{title, description} {
		for _, tok := range keyword.TokenizeWithPairs(text) {
			if err := check(BadWordsSet, tok); err != nil {
				return nil, err
			}
		}
	}
	for _, l := range labels {
		if err := check(BadLabelsSet, keyword.Slugify(l)); err != nil {
			return nil, err
		}
	}
	return hits, nil
}
