package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/moderation/cachestore"
	"github.com/tipjar-social/contentcheck/moderation/queue"

	cli "github.com/urfave/cli/v2"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the moderation HTTP API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3900",
			EnvVars: []string{"CONTENTCHECK_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3901",
			EnvVars: []string{"CONTENTCHECK_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "request-timeout",
			Usage:   "upper bound on a single moderation request (0 for none)",
			EnvVars: []string{"CONTENTCHECK_REQUEST_TIMEOUT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, true)

		shutdownOTEL, err := configOTEL(cctx.Context, "contentcheck")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		checker, err := configChecker(cctx, logger)
		if err != nil {
			return err
		}

		srv := NewServer(checker, Config{
			Logger:         logger,
			Bind:           cctx.String("bind"),
			RequestTimeout: cctx.Duration("request-timeout"),
		})

		go func() {
			if err := RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		return srv.RunAPI(cctx.Context)
	},
}

var consumeCmd = &cli.Command{
	Name:  "consume",
	Usage: "moderate submissions from a kafka topic, publishing verdicts to another",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "kafka broker addresses",
			Value:   cli.NewStringSlice("localhost:9092"),
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Usage:   "topic of submission JSON messages",
			Value:   "submissions",
			EnvVars: []string{"CONTENTCHECK_KAFKA_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "kafka-group",
			Usage:   "consumer group ID",
			Value:   "contentcheck",
			EnvVars: []string{"CONTENTCHECK_KAFKA_GROUP"},
		},
		&cli.StringFlag{
			Name:    "kafka-verdict-topic",
			Usage:   "topic verdict messages are published to",
			Value:   "submission-verdicts",
			EnvVars: []string{"CONTENTCHECK_KAFKA_VERDICT_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3901",
			EnvVars: []string{"CONTENTCHECK_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, true)

		shutdownOTEL, err := configOTEL(cctx.Context, "contentcheck")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		checker, err := configChecker(cctx, logger)
		if err != nil {
			return err
		}

		brokers := cctx.StringSlice("kafka-brokers")
		publisher, err := queue.NewVerdictPublisher(brokers, cctx.String("kafka-verdict-topic"))
		if err != nil {
			return err
		}
		defer publisher.Close()

		consumer, err := queue.NewConsumer(queue.ConsumerConfig{
			Brokers: brokers,
			Topic:   cctx.String("kafka-topic"),
			GroupID: cctx.String("kafka-group"),
			Handler: queue.NewSubmissionHandler(checker, publisher, logger),
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer consumer.Close()

		go func() {
			if err := RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return consumer.Run(ctx)
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "moderate a single submission (JSON file, or stdin) and print the report",
	ArgsUsage: "[<submission.json>]",
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, false)

		checker, err := configChecker(cctx, logger)
		if err != nil {
			return err
		}

		var r io.Reader = os.Stdin
		if p := cctx.Args().First(); p != "" && p != "-" {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		sub, err := readSubmission(r)
		if err != nil {
			return err
		}

		report := checker.Check(cctx.Context, sub)
		return writeReport(os.Stdout, report)
	},
}

var purgeLabelsCmd = &cli.Command{
	Name:      "purge-labels",
	Usage:     "drop cached image labels for files in a submission directory, so they are extracted again",
	ArgsUsage: "<directoryCID> <fileName>...",
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, false)

		if cctx.NArg() < 2 {
			return fmt.Errorf("a directory CID and at least one file name are required")
		}
		// the in-process cache only lives as long as a serve or consume process
		if cctx.String("redis-url") == "" {
			return fmt.Errorf("purging labels requires a shared cache (--redis-url)")
		}
		store, err := configLabelStore(cctx)
		if err != nil {
			return err
		}

		args := cctx.Args().Slice()
		urls := make([]string, 0, len(args)-1)
		for _, name := range args[1:] {
			urls = append(urls, moderation.ArtifactURL(cctx.String("resolver-prefix"), args[0], name))
		}
		n, err := purgeLabels(cctx.Context, store, urls)
		if err != nil {
			return err
		}
		logger.Info("purged cached labels", "directoryCID", args[0], "artifacts", n)
		return nil
	},
}

// Stops at the first store error; returns the number of URLs purged before it.
func purgeLabels(ctx context.Context, store cachestore.LabelStore, urls []string) (int, error) {
	for i, u := range urls {
		if err := store.Forget(ctx, u); err != nil {
			return i, fmt.Errorf("purging cached labels for %s: %w", u, err)
		}
	}
	return len(urls), nil
}

func readSubmission(r io.Reader) (*moderation.Submission, error) {
	var sub moderation.Submission
	if err := json.NewDecoder(r).Decode(&sub); err != nil {
		return nil, fmt.Errorf("parsing submission JSON: %w", err)
	}
	if err := queue.ValidateSubmission(&sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func writeReport(w io.Writer, report *moderation.Report) error {
	out := struct {
		*moderation.Report
		Message string `json:"message"`
	}{
		Report:  report,
		Message: report.Verdict.Message(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
