package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"

	"github.com/mediarelay/mediarelay/bot"
	"github.com/mediarelay/mediarelay/download"
	"github.com/mediarelay/mediarelay/transport"
	"github.com/mediarelay/mediarelay/upload"
)

const (
	notifierQueueSize = 64
	pollRetryDelay    = 3 * time.Second
	sweepMaxAge       = 24 * time.Hour
)

func main() {
	logger := log.NewLogger()
	envRepo := env.NewRepository()

	cfg, err := bot.LoadConfig(envRepo)
	if err != nil {
		logger.Errorf("Configuration error: %s", err)
		os.Exit(1)
	}
	logger.EnableDebugLog(cfg.Verbose)

	messages := transport.NewMessageClient(retryhttp.NewClient(logger), cfg.APIBaseURL, cfg.Token, logger)
	parts := transport.NewFilePartClient(nil, cfg.APIBaseURL, cfg.Token, logger)
	engine := upload.NewEngine(upload.DefaultConfig(), parts, logger)

	downloader := download.NewDownloader(cfg.DownloadDir, cfg.MaxFileSize, nil, logger)
	if region := envRepo.Get("AWS_REGION"); region != "" {
		downloader.EnableS3(download.S3SourceParams{
			Region:          region,
			AccessKeyID:     envRepo.Get("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: envRepo.Get("AWS_SECRET_ACCESS_KEY"),
			NumFullRetries:  3,
		})
	}

	if removed, err := downloader.Sweep([]string{"*/*"}, sweepMaxAge); err != nil {
		logger.Warnf("Download directory sweep failed: %s", err)
	} else if removed > 0 {
		logger.Infof("Removed %d stale download(s)", removed)
	}

	notifier := bot.NewNotifier(messages, notifierQueueSize, logger)
	notifier.Start()
	defer notifier.Stop()

	relay := bot.New(cfg, messages, downloader, engine, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Media relay bot started")
	poll(ctx, messages, relay, cfg.RequestTimeout, logger)
	logger.Infof("Shutting down")
}

func poll(ctx context.Context, messages *transport.MessageClient, relay *bot.Bot, requestTimeout time.Duration, logger log.Logger) {
	var offset int64
	for {
		updates, err := messages.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("Polling failed: %s", err)
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}
			msg := bot.Incoming{
				ChatID: update.Message.ChatID,
				UserID: update.Message.UserID,
				Text:   update.Message.Text,
			}
			go func() {
				handleCtx, cancel := context.WithTimeout(ctx, requestTimeout)
				defer cancel()
				relay.Handle(handleCtx, msg)
			}()
		}
	}
}
