package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"

	"github.com/memelens/memelens/internal/application/batch"
	"github.com/memelens/memelens/internal/config"
	"github.com/memelens/memelens/internal/domain/meme"
	"github.com/memelens/memelens/internal/infra/ai/ark"
	"github.com/memelens/memelens/internal/infra/checkpoint"
	"github.com/memelens/memelens/internal/infra/httpserver"
	"github.com/memelens/memelens/internal/infra/imagefetch"
	"github.com/memelens/memelens/internal/middleware"
)

const usage = `Usage:
  memelens analyze <input.json> <output.json> [flags]
  memelens filter <input.json> <output.json>
  memelens serve [flags]

Environment:
  ARK_API_KEY     Required for analyze/serve.
  ARK_API_URL     Optional endpoint override.
  ARK_MODEL       Optional model override.
  ARK_PROMPT      Optional prompt override.
  ANALYSIS_HOST   Server host (default 127.0.0.1).
  ANALYSIS_PORT   Server port (default 8000).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "filter":
		err = runFilter(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Error(os.Args[1] + " failed")
		os.Exit(1)
	}
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	imageMode := fs.String("image-mode", "url", "submit images by 'url' or inline as base64 'data'")
	limit := fs.Int("limit", 0, "cap on newly submitted records (0 = all)")
	resume := fs.Bool("resume", false, "skip records already present in the output file")
	concurrency := fs.Int("concurrency", 4, "max in-flight analysis calls")
	maxAttempts := fs.Int("max-attempts", 3, "attempts per record for retryable failures")
	downloadTimeout := fs.Duration("download-timeout", config.DefaultDownloadTimeout, "image download timeout in data mode")
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "optional yaml config file")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("analyze needs <input.json> <output.json>")
	}
	inputPath, outputPath := fs.Arg(0), fs.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	doc, err := meme.ReadDocument(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var fetcher ark.ImageFetcher
	switch *imageMode {
	case "url", "remote":
	case "data":
		fetcher = imagefetch.New(*downloadTimeout)
	default:
		return fmt.Errorf("unknown image mode %q", *imageMode)
	}

	client := ark.New(cfg.API.Key, cfg.API.URL, cfg.API.Model, cfg.API.Prompt, config.DefaultRequestTimeout, fetcher)
	store := checkpoint.New(outputPath)

	sched := &batch.Scheduler{
		Client: client,
		Store:  store,
		Opts: batch.Options{
			Concurrency: *concurrency,
			MaxAttempts: *maxAttempts,
			Resume:      *resume,
			Limit:       *limit,
		},
	}

	// Interrupt stops dispatch, lets in-flight calls finish, flushes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, summary, err := sched.Run(ctx, doc.Records)
	fmt.Printf("analyzed %d records: %d succeeded, %d failed, %d skipped -> %s\n",
		len(out), summary.Succeeded, summary.Failed, summary.Skipped, outputPath)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d records failed terminally", summary.Failed)
	}
	return nil
}

func runFilter(args []string) error {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("filter needs <input.json> <output.json>")
	}

	doc, err := meme.ReadDocument(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	static := meme.FilterStatic(doc.Records)
	data, err := doc.Marshal(static)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.Arg(1), data, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote %d static entries to %s\n", len(static), fs.Arg(1))
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "bind address (overrides ANALYSIS_HOST/ANALYSIS_PORT)")
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "optional yaml config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	urlClient := ark.New(cfg.API.Key, cfg.API.URL, cfg.API.Model, cfg.API.Prompt, config.DefaultRequestTimeout, nil)
	dataClient := ark.New(cfg.API.Key, cfg.API.URL, cfg.API.Model, cfg.API.Prompt, config.DefaultRequestTimeout,
		imagefetch.New(config.DefaultDownloadTimeout))

	checkers := map[string]middleware.HealthChecker{
		"config": middleware.CheckerFunc(func(context.Context) error {
			return cfg.RequireAPIKey()
		}),
	}

	listen := cfg.ListenAddr()
	if *addr != "" {
		listen = *addr
	}

	srv := &http.Server{
		Addr:         listen,
		Handler:      httpserver.NewRouter(urlClient, dataClient, checkers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", listen).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
