// Package bot wires the media relay together: it parses user commands,
// downloads the requested media, drives the upload pipeline and sends the
// resulting file reference back to the chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"

	"github.com/mediarelay/mediarelay/download"
	"github.com/mediarelay/mediarelay/upload"
)

const startMessage = "Media relay bot\nSend a link to get the video, or use /audio <link> for audio only."

// Incoming is one user message, already stripped of platform framing.
type Incoming struct {
	ChatID int64
	UserID int64
	Text   string
}

// Sender is the outbound message boundary.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
	SendMedia(ctx context.Context, chatID int64, ref upload.FileReference, path string, isAudio bool) error
}

// Fetcher is the media download boundary, implemented by *download.Downloader.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, userID int64, progress download.ProgressFunc) (download.Media, error)
}

// Uploader is the upload engine boundary, implemented by *upload.Engine.
type Uploader interface {
	UploadWithProgress(ctx context.Context, file upload.LocalFile, events chan<- upload.Progress) (upload.FileReference, error)
}

// Bot handles incoming messages.
type Bot struct {
	cfg        Config
	sender     Sender
	downloader Fetcher
	extractor  download.Extractor
	engine     Uploader
	notifier   *Notifier
	logger     log.Logger
}

// Option customizes a Bot.
type Option func(*Bot)

// WithExtractor routes page URLs through the given extractor. Direct media
// URLs (a file extension the downloader handles, or an s3 object) still go
// through the plain downloader.
func WithExtractor(extractor download.Extractor) Option {
	return func(b *Bot) {
		b.extractor = extractor
	}
}

// New ...
func New(cfg Config, sender Sender, downloader Fetcher, engine Uploader, notifier *Notifier, logger log.Logger, opts ...Option) *Bot {
	b := &Bot{
		cfg:        cfg,
		sender:     sender,
		downloader: downloader,
		engine:     engine,
		notifier:   notifier,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle dispatches one incoming message.
func (b *Bot) Handle(ctx context.Context, msg Incoming) {
	text := strings.TrimSpace(msg.Text)

	switch {
	case text == "/start":
		b.reply(ctx, msg.ChatID, startMessage)
	case strings.HasPrefix(text, "/audio"):
		b.handleRequest(ctx, msg, strings.TrimSpace(strings.TrimPrefix(text, "/audio")), true)
	default:
		b.handleRequest(ctx, msg, text, false)
	}
}

func (b *Bot) handleRequest(ctx context.Context, msg Incoming, rawURL string, isAudio bool) {
	if !download.IsValidURL(rawURL) {
		b.reply(ctx, msg.ChatID, "That does not look like a valid link.")
		return
	}

	statusID, err := b.sender.SendMessage(ctx, msg.ChatID, "Starting download...")
	if err != nil {
		b.logger.Errorf("Failed to send status message: %s", err)
		return
	}

	media, err := b.fetchMedia(ctx, msg, rawURL, isAudio, statusID)
	if err != nil {
		b.logger.Errorf("Download failed: %s", err)
		b.editStatus(ctx, msg.ChatID, statusID, downloadFailureText(err))
		return
	}
	defer func() {
		if err := os.Remove(media.Path); err != nil {
			b.logger.Warnf("Failed to remove %s: %s", media.Path, err)
		}
	}()
	media.IsAudio = isAudio

	b.editStatus(ctx, msg.ChatID, statusID, "Download finished, uploading...")

	events := make(chan upload.Progress, 16)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range events {
			b.notifier.Publish(Event{
				ChatID:    msg.ChatID,
				MessageID: statusID,
				Text:      formatUploadProgress(p),
			})
		}
	}()

	ref, err := b.engine.UploadWithProgress(ctx, upload.LocalFile{
		Path:        media.Path,
		Size:        media.Size,
		DisplayName: media.DisplayName,
		Tier:        b.cfg.Tier(),
	}, events)
	close(events)
	<-forwarded
	if err != nil {
		b.logger.Errorf("Upload failed: %s", err)
		b.editStatus(ctx, msg.ChatID, statusID, uploadFailureText(err))
		return
	}

	if err := b.sender.SendMedia(ctx, msg.ChatID, ref, media.Path, media.IsAudio); err != nil {
		b.logger.Errorf("Failed to send media: %s", err)
		b.editStatus(ctx, msg.ChatID, statusID, "Upload succeeded but sending the file failed.")
		return
	}

	b.editStatus(ctx, msg.ChatID, statusID, "Done!")
}

// fetchMedia resolves the URL into a local file. Page URLs go through the
// extractor when one is configured; direct media URLs and everything else
// go through the downloader, which enforces the size cap itself.
func (b *Bot) fetchMedia(ctx context.Context, msg Incoming, rawURL string, isAudio bool, statusID int64) (download.Media, error) {
	if b.extractor == nil || download.IsDirectMediaURL(rawURL) {
		return b.downloader.Fetch(ctx, rawURL, msg.UserID, func(downloaded, total int64) {
			b.notifier.Publish(Event{
				ChatID:    msg.ChatID,
				MessageID: statusID,
				Text:      formatDownloadProgress(downloaded, total),
			})
		})
	}

	dir := filepath.Join(b.cfg.DownloadDir, strconv.FormatInt(msg.UserID, 10))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return download.Media{}, fmt.Errorf("create user download dir: %w", err)
	}

	media, err := b.extractor.Extract(ctx, rawURL, dir, isAudio)
	if err != nil {
		return download.Media{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	if b.cfg.MaxFileSize > 0 && media.Size > b.cfg.MaxFileSize {
		if err := os.Remove(media.Path); err != nil {
			b.logger.Warnf("Failed to remove %s: %s", media.Path, err)
		}
		return download.Media{}, fmt.Errorf("%w: %s", download.ErrFileTooLarge, media.DisplayName)
	}
	return media, nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Errorf("Failed to send message: %s", err)
	}
}

func (b *Bot) editStatus(ctx context.Context, chatID, messageID int64, text string) {
	if err := b.sender.EditMessage(ctx, chatID, messageID, text); err != nil {
		b.logger.Debugf("Failed to edit status message: %s", err)
	}
}

func downloadFailureText(err error) string {
	switch {
	case errors.Is(err, download.ErrFileTooLarge):
		return "The file exceeds the maximum allowed size."
	case errors.Is(err, download.ErrInvalidURL):
		return "That does not look like a valid link."
	case errors.Is(err, download.ErrSourceNotFound):
		return "The linked file could not be found."
	default:
		return "Download failed."
	}
}

func uploadFailureText(err error) string {
	switch upload.ReasonForError(err) {
	case upload.ReasonSizeExceeded:
		return "The file is too large for this account tier."
	case upload.ReasonRateLimited:
		return "The platform is rate limiting uploads for this account. Try again later."
	default:
		return "Upload failed."
	}
}

func formatDownloadProgress(downloaded, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("Downloading... %s", units.HumanSize(float64(downloaded)))
	}
	percent := float64(downloaded) / float64(total) * 100
	return fmt.Sprintf("Downloading... %.1f%% (%s of %s)",
		percent, units.HumanSize(float64(downloaded)), units.HumanSize(float64(total)))
}

func formatUploadProgress(p upload.Progress) string {
	return fmt.Sprintf("Uploading... part %d/%d (%s of %s)",
		p.UploadedParts, p.TotalParts,
		units.HumanSize(float64(p.UploadedBytes)), units.HumanSize(float64(p.TotalBytes)))
}
