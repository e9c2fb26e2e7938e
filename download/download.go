// Package download fetches remote media onto local storage, where the upload
// pipeline takes over. It enforces the configured size cap and keeps one
// download directory per user.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/melbahja/got"
)

// ErrInvalidURL ...
var ErrInvalidURL = errors.New("invalid URL")

// ErrFileTooLarge is returned when a downloaded file exceeds the configured
// size cap. The file is deleted before the error is returned.
var ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")

// ErrSourceNotFound ...
var ErrSourceNotFound = errors.New("source object not found")

// Media describes a downloaded file handed over to the upload pipeline.
type Media struct {
	Path        string
	Size        int64
	DisplayName string
	IsAudio     bool
}

// Extractor is the media extraction/transcoding boundary. Implementations
// resolve a page URL into a playable local file (picking formats, merging
// streams, converting to audio). The relay treats it as an external
// collaborator and only depends on the Media it produces.
type Extractor interface {
	Extract(ctx context.Context, rawURL string, destDir string, audioOnly bool) (Media, error)
}

// directMediaExtensions are path suffixes the downloader fetches byte for
// byte. Anything else is treated as a page URL that needs an Extractor.
var directMediaExtensions = map[string]bool{
	".mp4": true, ".m4a": true, ".mp3": true, ".webm": true, ".mkv": true,
	".mov": true, ".avi": true, ".ogg": true, ".wav": true, ".flac": true,
}

// IsDirectMediaURL reports whether the URL points at a media file itself
// rather than a page embedding one. s3 objects are always direct.
func IsDirectMediaURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme == "s3" {
		return true
	}
	return directMediaExtensions[strings.ToLower(path.Ext(parsed.Path))]
}

// ProgressFunc receives download progress. total is 0 when unknown.
type ProgressFunc func(downloaded, total int64)

// Downloader fetches http(s) and s3 sources into per-user directories.
type Downloader struct {
	rootDir     string
	maxFileSize int64
	httpClient  *http.Client
	s3          *S3SourceParams
	logger      log.Logger
}

// NewDownloader creates a downloader rooted at rootDir. maxFileSize of 0
// disables the size cap. A nil httpClient uses the environment's default.
func NewDownloader(rootDir string, maxFileSize int64, httpClient *http.Client, logger log.Logger) *Downloader {
	return &Downloader{
		rootDir:     rootDir,
		maxFileSize: maxFileSize,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// EnableS3 turns on support for s3://bucket/key source URLs.
func (d *Downloader) EnableS3(params S3SourceParams) {
	d.s3 = &params
}

// IsValidURL reports whether the string parses as a URL with both a scheme
// and a host.
func IsValidURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}

// UserDir returns the download directory of the given user, creating it if
// needed.
func (d *Downloader) UserDir(userID int64) (string, error) {
	dir := filepath.Join(d.rootDir, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create user download dir: %w", err)
	}
	return dir, nil
}

// Fetch downloads the given URL into the user's directory and returns the
// local media descriptor. Files over the size cap are deleted and rejected.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, userID int64, progress ProgressFunc) (Media, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Media{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	dir, err := d.UserDir(userID)
	if err != nil {
		return Media{}, err
	}

	switch parsed.Scheme {
	case "http", "https":
		return d.fetchHTTP(ctx, rawURL, parsed, dir, progress)
	case "s3":
		return d.fetchS3(ctx, parsed, dir)
	default:
		return Media{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
}

func (d *Downloader) fetchHTTP(ctx context.Context, rawURL string, parsed *url.URL, dir string, progress ProgressFunc) (Media, error) {
	dest := filepath.Join(dir, fileNameFromURL(parsed))

	dl := got.NewDownload(ctx, rawURL, dest)
	downloader := got.New()
	if d.httpClient != nil {
		downloader.Client = d.httpClient
	}

	if progress != nil {
		dl.Interval = 500
		go dl.RunProgress(func(current *got.Download) {
			progress(int64(current.Size()), int64(current.TotalSize()))
		})
		defer func() { dl.StopProgress = true }()
	}

	d.logger.Debugf("Downloading %s to %s", rawURL, dest)
	if err := downloader.Do(dl); err != nil {
		return Media{}, fmt.Errorf("download %s: %w", rawURL, err)
	}

	return d.finalize(dest)
}

// finalize stats the downloaded file and enforces the size cap.
func (d *Downloader) finalize(dest string) (Media, error) {
	info, err := os.Stat(dest)
	if err != nil {
		return Media{}, fmt.Errorf("stat downloaded file: %w", err)
	}

	if info.Size() == 0 {
		_ = os.Remove(dest)
		return Media{}, fmt.Errorf("downloaded file %s is empty", filepath.Base(dest))
	}

	if d.maxFileSize > 0 && info.Size() > d.maxFileSize {
		_ = os.Remove(dest)
		return Media{}, fmt.Errorf("%w: %s is %s, limit is %s",
			ErrFileTooLarge, filepath.Base(dest),
			units.BytesSize(float64(info.Size())), units.BytesSize(float64(d.maxFileSize)))
	}

	return Media{
		Path:        dest,
		Size:        info.Size(),
		DisplayName: filepath.Base(dest),
	}, nil
}

// fileNameFromURL extracts the filename from a URL path, falling back to a
// timestamped name for path-less URLs.
func fileNameFromURL(parsed *url.URL) string {
	name := filepath.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return fmt.Sprintf("media-%d", time.Now().Unix())
	}
	return name
}
