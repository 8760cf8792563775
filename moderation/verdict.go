package moderation

import (
	"fmt"
)

// Tri-state outcome of a single moderation run.
//
// VerdictNotStarted means no decision could be reached. It is not a rejection, and callers should surface it separately from VerdictNeedsReview.
type Verdict int

const (
	VerdictNotStarted Verdict = iota
	VerdictNeedsReview
	VerdictPassed
)

func (v Verdict) String() string {
	switch v {
	case VerdictNotStarted:
		return "not-started"
	case VerdictNeedsReview:
		return "needs-review"
	case VerdictPassed:
		return "passed"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// User-facing description of the verdict
func (v Verdict) Message() string {
	switch v {
	case VerdictNeedsReview:
		return "a human must approve this submission before it is published"
	case VerdictPassed:
		return "approved for publishing"
	default:
		return "moderation could not complete, try again later"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	switch v {
	case VerdictNotStarted, VerdictNeedsReview, VerdictPassed:
		return []byte(v.String()), nil
	}
	return nil, fmt.Errorf("unknown verdict: %d", int(v))
}

func (v *Verdict) UnmarshalText(b []byte) error {
	p, err := ParseVerdict(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

func ParseVerdict(raw string) (Verdict, error) {
	switch raw {
	case "not-started":
		return VerdictNotStarted, nil
	case "needs-review":
		return VerdictNeedsReview, nil
	case "passed":
		return VerdictPassed, nil
	}
	return VerdictNotStarted, fmt.Errorf("unknown verdict: %q", raw)
}

// Reduces a verification result to a verdict. An unsuccessful verification is always VerdictNotStarted; otherwise the confidence is compared (inclusive) against threshold.
func ReduceVerdict(res VerificationResult, threshold float64) Verdict {
	if !res.Success {
		return VerdictNotStarted
	}
	if res.Confidence >= threshold {
		return VerdictPassed
	}
	return VerdictNeedsReview
}
