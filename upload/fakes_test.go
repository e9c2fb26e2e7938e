package upload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeTransport is an instrumented FileTransport double: it records every
// part it receives, tracks the concurrent-entry high-water mark and can fail
// a scripted number of attempts per part index.
type fakeTransport struct {
	latency time.Duration

	mu         sync.Mutex
	failures   map[int]int   // part index -> failing attempts to inject
	errs       map[int]error // error used for injected failures, default transport error
	parts      map[int][]byte
	attempts   map[int]int
	smallCalls int
	bigCalls   int

	inFlight    int32
	maxInFlight int32
	calls       int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failures: map[int]int{},
		errs:     map[int]error{},
		parts:    map[int][]byte{},
		attempts: map[int]int{},
	}
}

func (t *fakeTransport) SaveFilePart(ctx context.Context, fileID int64, part, totalParts int, data []byte) error {
	t.mu.Lock()
	t.smallCalls++
	t.mu.Unlock()
	return t.save(part, data)
}

func (t *fakeTransport) SaveBigFilePart(ctx context.Context, fileID int64, part, totalParts int, data []byte) error {
	t.mu.Lock()
	t.bigCalls++
	t.mu.Unlock()
	return t.save(part, data)
}

func (t *fakeTransport) save(part int, data []byte) error {
	atomic.AddInt32(&t.calls, 1)
	current := atomic.AddInt32(&t.inFlight, 1)
	for {
		max := atomic.LoadInt32(&t.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&t.maxInFlight, max, current) {
			break
		}
	}
	defer atomic.AddInt32(&t.inFlight, -1)

	if t.latency > 0 {
		time.Sleep(t.latency)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[part]++
	if t.failures[part] > 0 {
		t.failures[part]--
		if err := t.errs[part]; err != nil {
			return err
		}
		return fmt.Errorf("save part failed with status 500: temporary error")
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	t.parts[part] = stored
	return nil
}

func (t *fakeTransport) partAttempts(part int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[part]
}

func (t *fakeTransport) callCounts() (small, big int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.smallCalls, t.bigCalls
}

// reassemble concatenates the received parts in index order.
func (t *fakeTransport) reassemble(totalParts int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	var joined []byte
	for i := 0; i < totalParts; i++ {
		joined = append(joined, t.parts[i]...)
	}
	return joined
}
