package moderation

import (
	"context"
	"sort"
)

// A batch of user-submitted files plus free-text metadata. Treated as immutable for the duration of a moderation run.
type Submission struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	// locator of the directory holding the files (eg, an IPFS CID)
	DirectoryCID string   `json:"directoryCID"`
	FileNames    []string `json:"fileNames"`
}

type ExtractionResult struct {
	Success bool
	// meaningless if Success is false
	Labels []string
}

type VerificationResult struct {
	Success bool
	// in [0,1], meaningless if Success is false
	Confidence float64
}

// Returns visual-content labels for the artifact at a URL.
//
// Implementations must fail soft: unreachable URLs, non-image payloads, timeouts and cancellation all result in Success=false, never a panic.
type ImageLabeler interface {
	GetLabels(ctx context.Context, url string) ExtractionResult
}

// Scores whether the combination of title, description and image labels is acceptable to publish. Must fail soft, like ImageLabeler.
type TextVerifier interface {
	Verify(ctx context.Context, title, description string, labels []string) VerificationResult
}

// Deduplicated, unordered set of labels
type LabelSet map[string]bool

func NewLabelSet() LabelSet {
	return make(LabelSet)
}

func (s LabelSet) Add(labels ...string) {
	for _, l := range labels {
		s[l] = true
	}
}

func (s LabelSet) Has(label string) bool {
	return s[label]
}

func (s LabelSet) Len() int {
	return len(s)
}

// Returns labels in lexical order, so that repeated runs pass identical sequences to the verifier.
func (s LabelSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
