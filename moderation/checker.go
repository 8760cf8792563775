package moderation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("moderation")

// Runs the moderation decision pipeline: filters artifacts, fans out label extraction, verifies text plus labels, and reduces to a Verdict.
//
// A Checker holds no per-run state, and is safe to use from multiple goroutines. The collaborators are expected to be safe for concurrent use as well.
type Checker struct {
	Labeler  ImageLabeler
	Verifier TextVerifier
	Config   Config
	Logger   *slog.Logger
}

// Detail of a single moderation run, for logging and API responses. Not persisted.
type Report struct {
	Verdict Verdict `json:"verdict"`
	// URLs which were sent for label extraction, in submission order
	Artifacts         []string `json:"artifacts"`
	FailedExtractions int      `json:"failedExtractions"`
	// merged label set, sorted
	Labels []string `json:"labels"`
	// whether the verifier was called and succeeded
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

func NewChecker(labeler ImageLabeler, verifier TextVerifier, config Config, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		Labeler:  labeler,
		Verifier: verifier,
		Config:   config.withDefaults(),
		Logger:   logger,
	}
}

func (c *Checker) Moderate(ctx context.Context, sub *Submission) Verdict {
	return c.Check(ctx, sub).Verdict
}

func (c *Checker) Check(ctx context.Context, sub *Submission) *Report {
	ctx, span := tracer.Start(ctx, "Check", trace.WithAttributes(
		attribute.String("directoryCID", sub.DirectoryCID),
		attribute.Int("files", len(sub.FileNames)),
	))
	defer span.End()

	start := time.Now()
	logger := c.Logger.With("directoryCID", sub.DirectoryCID, "author", sub.Author)

	report := c.check(ctx, logger, sub)

	runDuration.Observe(time.Since(start).Seconds())
	runCount.WithLabelValues(report.Verdict.String()).Inc()
	span.SetAttributes(
		attribute.String("verdict", report.Verdict.String()),
		attribute.Int("artifacts", len(report.Artifacts)),
		attribute.Int("labels", len(report.Labels)),
	)
	logger.Info("moderation-verdict",
		"verdict", report.Verdict.String(),
		"artifacts", len(report.Artifacts),
		"failedExtractions", report.FailedExtractions,
		"labels", report.Labels,
		"verified", report.Verified,
		"confidence", report.Confidence,
		"duration", time.Since(start),
	)
	return report
}

func (c *Checker) check(ctx context.Context, logger *slog.Logger, sub *Submission) *Report {
	// Config is exported and may have been changed after NewChecker
	cfg := c.Config.withDefaults()
	names := FilterArtifacts(sub.FileNames, cfg.ExcludedExtensions, cfg.MaxArtifacts)
	urls := make([]string, len(names))
	for i, name := range names {
		urls[i] = ArtifactURL(cfg.ResolverPrefix, sub.DirectoryCID, name)
	}

	report := &Report{
		Verdict:   VerdictNotStarted,
		Artifacts: urls,
		Labels:    []string{},
	}

	results := c.extractAll(ctx, logger, urls)

	labelSet := NewLabelSet()
	for _, res := range results {
		if !res.Success {
			report.FailedExtractions++
			continue
		}
		labelSet.Add(res.Labels...)
	}
	artifactsDispatched.Add(float64(len(urls)))
	extractionFailures.Add(float64(report.FailedExtractions))

	// with artifacts present, verification needs at least one set of labels
	if len(urls) > 0 && report.FailedExtractions == len(urls) {
		logger.Warn("all label extractions failed", "artifacts", len(urls))
		return report
	}

	report.Labels = labelSet.Sorted()
	res := c.verify(ctx, logger, sub, report.Labels)
	if !res.Success {
		verifierFailures.Inc()
		logger.Warn("text verification failed")
		return report
	}
	report.Verified = true
	report.Confidence = res.Confidence
	report.Verdict = ReduceVerdict(res, cfg.PassThreshold)
	return report
}

// Dispatches all extraction calls concurrently and waits for every one of them to settle. Results are in the same order as urls.
func (c *Checker) extractAll(ctx context.Context, logger *slog.Logger, urls []string) []ExtractionResult {
	results := make([]ExtractionResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	ctx, span := tracer.Start(ctx, "extractAll")
	defer span.End()

	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			results[i] = c.extract(ctx, logger, u)
			return nil
		})
	}
	// goroutines never return errors; failures are carried in the results
	_ = g.Wait()
	return results
}

func (c *Checker) extract(ctx context.Context, logger *slog.Logger, url string) (res ExtractionResult) {
	// a panicking labeler counts as a failed extraction
	defer func() {
		if r := recover(); r != nil {
			logger.Error("label extraction panic", "err", r, "url", url)
			res = ExtractionResult{Success: false}
		}
	}()

	res = c.Labeler.GetLabels(ctx, url)
	if !res.Success {
		logger.Info("label extraction failed", "url", url)
	}
	return res
}

func (c *Checker) verify(ctx context.Context, logger *slog.Logger, sub *Submission, labels []string) (res VerificationResult) {
	ctx, span := tracer.Start(ctx, "verify")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("text verification panic", "err", r)
			res = VerificationResult{Success: false}
		}
	}()

	return c.Verifier.Verify(ctx, sub.Title, sub.Description, labels)
}
