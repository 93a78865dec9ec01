package stream

import (
	"errors"
	"sync"
	"time"
)

// ErrRequestTimeout is passed to a request's continuation when no response
// arrived within the configured deadline. The pending entry has already
// been evicted; a late response will be dropped.
var ErrRequestTimeout = errors.New("request timed out waiting for a response")

// ResponseFunc is the continuation invoked when a matching response frame
// arrives, or with a non-nil err if the request's deadline expired first.
// It is invoked at most once per request.
type ResponseFunc func(data []byte, err error)

type pendingRequest struct {
	id      string
	cmd     string
	created time.Time
	respond ResponseFunc
	timer   *time.Timer
}

// tracker owns the in-flight request state: requests we originated and are
// awaiting responses for, and requests the remote side originated that we
// have yet to answer. Every outgoing entry carries a deadline timer so an
// unanswered request cannot leak forever.
type tracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	outgoing map[string]*pendingRequest
	incoming map[string]*pendingRequest
}

func newTracker(timeout time.Duration) *tracker {
	return &tracker{
		timeout:  timeout,
		outgoing: make(map[string]*pendingRequest),
		incoming: make(map[string]*pendingRequest),
	}
}

// trackOutgoing stores a request we originated and arms its deadline. The
// continuation fires with ErrRequestTimeout if the deadline wins the race.
func (t *tracker) trackOutgoing(id, cmd string, respond ResponseFunc) {
	pending := &pendingRequest{
		id:      id,
		cmd:     cmd,
		created: time.Now(),
		respond: respond,
	}

	pending.timer = time.AfterFunc(t.timeout, func() {
		if expired := t.takeOutgoing(id); expired != nil && expired.respond != nil {
			expired.respond(nil, ErrRequestTimeout)
		}
	})

	t.mu.Lock()
	t.outgoing[id] = pending
	t.mu.Unlock()
}

// takeOutgoing removes and returns the entry for id, stopping its deadline
// timer. Returns nil if the id is unknown, already resolved, or expired.
func (t *tracker) takeOutgoing(id string) *pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, ok := t.outgoing[id]
	if !ok {
		return nil
	}

	delete(t.outgoing, id)

	if pending.timer != nil {
		pending.timer.Stop()
	}

	return pending
}

// trackIncoming stores a request the remote side originated, keyed by the
// id it chose, so a later Respond can reply under the right command name.
func (t *tracker) trackIncoming(id, cmd string) {
	t.mu.Lock()
	t.incoming[id] = &pendingRequest{
		id:      id,
		cmd:     cmd,
		created: time.Now(),
	}
	t.mu.Unlock()
}

func (t *tracker) takeIncoming(id string) *pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, ok := t.incoming[id]
	if !ok {
		return nil
	}

	delete(t.incoming, id)
	return pending
}

func (t *tracker) pendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.outgoing) + len(t.incoming)
}

// stop disarms every outstanding deadline timer and drops all entries.
// Pending requests do not survive the connection they were issued on.
func (t *tracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, pending := range t.outgoing {
		if pending.timer != nil {
			pending.timer.Stop()
		}
		delete(t.outgoing, id)
	}

	for id := range t.incoming {
		delete(t.incoming, id)
	}
}
