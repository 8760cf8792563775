package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/moderation/cachestore"
	"github.com/tipjar-social/contentcheck/moderation/setstore"
	"github.com/tipjar-social/contentcheck/moderation/textcheck"
	"github.com/tipjar-social/contentcheck/moderation/visual"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "contentcheck",
		Usage:   "moderation decision service for user submissions",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"CONTENTCHECK_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "resolver-prefix",
			Usage:   "URL prefix which turns '<directoryCID>/<fileName>' in to a fetchable artifact URL",
			Value:   moderation.DefaultResolverPrefix,
			EnvVars: []string{"CONTENTCHECK_RESOLVER_PREFIX"},
		},
		&cli.IntFlag{
			Name:    "max-artifacts",
			Usage:   "max number of files per submission sent for image labeling",
			Value:   moderation.DefaultMaxArtifacts,
			EnvVars: []string{"CONTENTCHECK_MAX_ARTIFACTS"},
		},
		&cli.Float64Flag{
			Name:    "pass-threshold",
			Usage:   "minimum text verifier confidence for a submission to pass",
			Value:   moderation.DefaultPassThreshold,
			EnvVars: []string{"CONTENTCHECK_PASS_THRESHOLD"},
		},
		&cli.StringSliceFlag{
			Name:    "excluded-extensions",
			Usage:   "file extensions which are never sent for image labeling",
			Value:   cli.NewStringSlice(moderation.DefaultExcludedExtensions...),
			EnvVars: []string{"CONTENTCHECK_EXCLUDED_EXTENSIONS"},
		},
		&cli.StringFlag{
			Name:    "hive-api-token",
			Usage:   "API token for Hive AI image labeling",
			EnvVars: []string{"HIVEAI_API_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "hive-rate-limit",
			Usage:   "max Hive AI requests per second (0 for no limit)",
			Value:   20,
			EnvVars: []string{"CONTENTCHECK_HIVE_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "openai-api-key",
			Usage:   "API key for OpenAI text moderation (keyword verifier is used if not set)",
			EnvVars: []string{"OPENAI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "openai-base-url",
			Usage:   "base URL for the OpenAI API",
			Value:   textcheck.DefaultOpenAIConfig().BaseURL,
			EnvVars: []string{"OPENAI_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "openai-model",
			Usage:   "OpenAI moderation model name",
			Value:   textcheck.DefaultOpenAIConfig().Model,
			EnvVars: []string{"CONTENTCHECK_OPENAI_MODEL"},
		},
		&cli.StringFlag{
			Name:    "wordlist-json",
			Usage:   "path to JSON file with 'bad-words' and 'bad-labels' sets, for the keyword verifier",
			EnvVars: []string{"CONTENTCHECK_WORDLIST_JSON"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the label cache (in-process cache if not set)",
			EnvVars: []string{"CONTENTCHECK_REDIS_URL", "REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "label-cache-ttl",
			Usage:   "how long extracted labels are cached, by artifact URL",
			Value:   24 * time.Hour,
			EnvVars: []string{"CONTENTCHECK_LABEL_CACHE_TTL"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		consumeCmd,
		checkCmd,
		purgeLabelsCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, json bool) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var logger *slog.Logger
	if json {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	slog.SetDefault(logger)
	return logger
}

func configChecker(cctx *cli.Context, logger *slog.Logger) (*moderation.Checker, error) {

	config := moderation.Config{
		ResolverPrefix:     cctx.String("resolver-prefix"),
		ExcludedExtensions: cctx.StringSlice("excluded-extensions"),
		MaxArtifacts:       cctx.Int("max-artifacts"),
		PassThreshold:      cctx.Float64("pass-threshold"),
	}

	token := cctx.String("hive-api-token")
	if token == "" {
		return nil, fmt.Errorf("an image labeling API token is required (--hive-api-token)")
	}
	hive := visual.NewHiveAILabeler(token)
	if rl := cctx.Float64("hive-rate-limit"); rl > 0 {
		hive.Limiter = rate.NewLimiter(rate.Limit(rl), 1)
	}

	store, err := configLabelStore(cctx)
	if err != nil {
		return nil, err
	}
	labeler := visual.NewCachingLabeler(hive, store)

	var verifier moderation.TextVerifier
	if key := cctx.String("openai-api-key"); key != "" {
		logger.Info("configuring OpenAI text moderation")
		verifier = textcheck.NewOpenAIVerifier(textcheck.OpenAIConfig{
			APIKey:  key,
			BaseURL: cctx.String("openai-base-url"),
			Model:   cctx.String("openai-model"),
		})
	} else {
		sets := setstore.NewMemSetStore()
		if p := cctx.String("wordlist-json"); p != "" {
			if err := sets.LoadFromFileJSON(p); err != nil {
				return nil, fmt.Errorf("initializing keyword sets: %w", err)
			}
			logger.Info("loaded keyword sets from JSON", "path", p, "badWords", sets.Len(textcheck.BadWordsSet), "badLabels", sets.Len(textcheck.BadLabelsSet))
		} else {
			logger.Warn("no OpenAI key or wordlist configured; keyword verifier will pass everything")
		}
		verifier = textcheck.NewKeywordVerifier(sets)
	}

	return moderation.NewChecker(labeler, verifier, config, logger), nil
}

func configLabelStore(cctx *cli.Context) (cachestore.LabelStore, error) {
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		rls, err := cachestore.NewRedisLabelStore(redisURL, cctx.Duration("label-cache-ttl"))
		if err != nil {
			return nil, fmt.Errorf("initializing redis label cache: %w", err)
		}
		return rls, nil
	}
	return cachestore.NewMemLabelStore(10_000, cctx.Duration("label-cache-ttl")), nil
}
