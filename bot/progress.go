package bot

import (
	"context"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Event is one progress update bound for a user-facing status message.
type Event struct {
	ChatID    int64
	MessageID int64
	Text      string
}

const editTimeout = 10 * time.Second

// Notifier serializes status-message edits. Download and upload workers
// publish events into a bounded queue; a single consumer goroutine owns every
// edit call, so no two goroutines ever mutate the same chat message
// concurrently. When the queue is full, events are dropped rather than
// blocking the worker.
type Notifier struct {
	editor MessageEditor
	events chan Event
	done   chan struct{}
	logger log.Logger

	mu     sync.RWMutex
	closed bool
}

// MessageEditor is the slice of the message API the notifier needs.
type MessageEditor interface {
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
}

// NewNotifier creates a notifier with the given queue capacity.
func NewNotifier(editor MessageEditor, queueSize int, logger log.Logger) *Notifier {
	return &Notifier{
		editor: editor,
		events: make(chan Event, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the consumer goroutine.
func (n *Notifier) Start() {
	go n.consume()
}

// Publish enqueues an event. It never blocks; it reports whether the event
// was accepted or dropped because the queue was full or already stopped.
func (n *Notifier) Publish(event Event) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return false
	}

	select {
	case n.events <- event:
		return true
	default:
		return false
	}
}

// Stop drains the queue and waits for the consumer to finish. Later Publish
// calls are dropped.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.events)
	<-n.done
}

func (n *Notifier) consume() {
	defer close(n.done)

	for event := range n.events {
		ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
		if err := n.editor.EditMessage(ctx, event.ChatID, event.MessageID, event.Text); err != nil {
			// Progress text is best effort; the pipeline must not care.
			n.logger.Debugf("Failed to edit status message: %s", err)
		}
		cancel()
	}
}
