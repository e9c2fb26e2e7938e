package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/mediarelay/mediarelay/download"
	"github.com/mediarelay/mediarelay/upload"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type sentMessage struct {
	chatID int64
	text   string
}

type sentMedia struct {
	chatID  int64
	ref     upload.FileReference
	path    string
	isAudio bool
}

type fakeSender struct {
	mu        sync.Mutex
	messages  []sentMessage
	edits     []sentMessage
	media     []sentMedia
	sendErr   error
	mediaErr  error
	nextMsgID int64
	editErrs  int
}

func (s *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return 0, s.sendErr
	}
	s.messages = append(s.messages, sentMessage{chatID: chatID, text: text})
	s.nextMsgID++
	return s.nextMsgID, nil
}

func (s *fakeSender) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editErrs > 0 {
		s.editErrs--
		return fmt.Errorf("edit failed")
	}
	s.edits = append(s.edits, sentMessage{chatID: chatID, text: text})
	return nil
}

func (s *fakeSender) SendMedia(ctx context.Context, chatID int64, ref upload.FileReference, path string, isAudio bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mediaErr != nil {
		return s.mediaErr
	}
	s.media = append(s.media, sentMedia{chatID: chatID, ref: ref, path: path, isAudio: isAudio})
	return nil
}

func (s *fakeSender) editTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, 0, len(s.edits))
	for _, edit := range s.edits {
		texts = append(texts, edit.text)
	}
	return texts
}

func (s *fakeSender) hasEdit(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, edit := range s.edits {
		if edit.text == text {
			return true
		}
	}
	return false
}

type fakeFetcher struct {
	media    download.Media
	err      error
	fetched  []string
	reported bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, userID int64, progress download.ProgressFunc) (download.Media, error) {
	f.fetched = append(f.fetched, rawURL)
	if f.err != nil {
		return download.Media{}, f.err
	}
	if progress != nil {
		progress(f.media.Size/2, f.media.Size)
		f.reported = true
	}
	return f.media, nil
}

type fakeExtractor struct {
	media     download.Media
	err       error
	extracted []string
	audioOnly bool
	destDir   string
}

func (e *fakeExtractor) Extract(ctx context.Context, rawURL string, destDir string, audioOnly bool) (download.Media, error) {
	e.extracted = append(e.extracted, rawURL)
	e.audioOnly = audioOnly
	e.destDir = destDir
	if e.err != nil {
		return download.Media{}, e.err
	}
	return e.media, nil
}

type fakeUploader struct {
	ref   upload.FileReference
	err   error
	files []upload.LocalFile
}

func (u *fakeUploader) UploadWithProgress(ctx context.Context, file upload.LocalFile, events chan<- upload.Progress) (upload.FileReference, error) {
	u.files = append(u.files, file)
	if u.err != nil {
		return nil, u.err
	}
	if events != nil {
		events <- upload.Progress{UploadedParts: 1, TotalParts: 1, UploadedBytes: file.Size, TotalBytes: file.Size}
	}
	return u.ref, u.err
}
