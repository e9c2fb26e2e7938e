package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
)

type recordingEditor struct {
	mu      sync.Mutex
	texts   []string
	entered chan struct{}
	block   chan struct{}
}

func (e *recordingEditor) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	if e.entered != nil {
		e.entered <- struct{}{}
	}
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	return nil
}

func (e *recordingEditor) recorded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.texts...)
}

func TestNotifierDeliversInOrder(t *testing.T) {
	editor := &recordingEditor{}
	notifier := NewNotifier(editor, 16, log.NewLogger())
	notifier.Start()

	for i := 0; i < 5; i++ {
		if !notifier.Publish(Event{ChatID: 1, MessageID: 2, Text: fmt.Sprintf("step %d", i)}) {
			t.Fatalf("event %d was dropped", i)
		}
	}
	notifier.Stop()

	texts := editor.recorded()
	if len(texts) != 5 {
		t.Fatalf("expected 5 edits, got %d", len(texts))
	}
	for i, text := range texts {
		want := fmt.Sprintf("step %d", i)
		if text != want {
			t.Errorf("edit %d: expected %q, got %q", i, want, text)
		}
	}
}

func TestNotifierDropsWhenQueueFull(t *testing.T) {
	editor := &recordingEditor{
		entered: make(chan struct{}, 8),
		block:   make(chan struct{}),
	}
	notifier := NewNotifier(editor, 2, log.NewLogger())
	notifier.Start()

	// Park the consumer on the first edit, then fill the queue behind it.
	notifier.Publish(Event{Text: "consumed"})
	<-editor.entered
	notifier.Publish(Event{Text: "queued 1"})
	notifier.Publish(Event{Text: "queued 2"})

	accepted := 0
	for i := 0; i < 10; i++ {
		if notifier.Publish(Event{Text: "overflow"}) {
			accepted++
		}
	}
	if accepted != 0 {
		t.Errorf("expected overflow events to be dropped, %d were accepted", accepted)
	}

	close(editor.block)
	notifier.Stop()

	if got := len(editor.recorded()); got != 3 {
		t.Errorf("expected 3 edits, got %d", got)
	}
}
