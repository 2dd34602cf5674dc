// Package job holds the queue-side policies shared by the scheduler and the
// worker pool: lease normalisation and wake-up notifications.
package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Perkybeet/wasm/internal/util/backoff"
)

// QueueTopic is signalled whenever a job becomes available for reservation.
const QueueTopic = "queue"

// ProgressTopic is signalled whenever a job records a step or changes status.
func ProgressTopic(jobID string) string {
	return "job:" + jobID
}

// Waiter blocks until another process signals topic, for example over Redis
// pub/sub.
type Waiter interface {
	WaitForNotification(ctx context.Context, topic string) error
}

// Notifier hands out wake-up channels per topic.
type Notifier interface {
	Subscribe(topic string) (func(), <-chan struct{})
	Notify(topic string)
	StopAll()
}

// NotifierOptions configure DefaultNotifier.
type NotifierOptions struct {
	// Waiter is optional; without one only in-process Notify calls wake
	// subscribers.
	Waiter Waiter
	// WaitWindow bounds one WaitForNotification call. Default one minute.
	WaitWindow time.Duration
	// Backoff is the first pause after a failed wait. It doubles up to
	// twenty times its value while the waiter keeps failing.
	Backoff time.Duration
}

// DefaultNotifier coalesces signals: every subscriber channel holds at most
// one pending wake-up, and a woken subscriber re-reads state rather than
// counting signals.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	retryBase  time.Duration

	mu     sync.Mutex
	topics map[string]*topicState
}

// topicState tracks one topic's subscribers and, with a Waiter, the listener
// goroutine forwarding cross-process signals.
type topicState struct {
	subs   map[chan struct{}]struct{}
	cancel context.CancelFunc
}

func NewNotifier(opts NotifierOptions) *DefaultNotifier {
	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		retryBase:  opts.Backoff,
		topics:     map[string]*topicState{},
	}
	if n.waitWindow <= 0 {
		n.waitWindow = time.Minute
	}
	if n.retryBase <= 0 {
		n.retryBase = 250 * time.Millisecond
	}
	return n
}

// Subscribe returns an unsubscribe function and a channel that receives a
// value whenever topic is signalled. Unsubscribing closes the channel; the
// last subscriber of a topic also stops its listener.
func (n *DefaultNotifier) Subscribe(topic string) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ts := n.topics[topic]
	if ts == nil {
		ts = &topicState{subs: map[chan struct{}]struct{}{}}
		if n.waiter != nil {
			var ctx context.Context
			ctx, ts.cancel = context.WithCancel(context.Background())
			go n.listen(ctx, topic)
		}
		n.topics[topic] = ts
	}
	ch := make(chan struct{}, 1)
	ts.subs[ch] = struct{}{}

	var once sync.Once
	return func() { once.Do(func() { n.unsubscribe(topic, ch) }) }, ch
}

func (n *DefaultNotifier) unsubscribe(topic string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ts := n.topics[topic]
	if ts == nil {
		return
	}
	if _, ok := ts.subs[ch]; !ok {
		return
	}
	delete(ts.subs, ch)
	closeDrained(ch)
	if len(ts.subs) == 0 {
		ts.stop()
		delete(n.topics, topic)
	}
}

// Notify wakes every current subscriber of topic without blocking.
func (n *DefaultNotifier) Notify(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ts := n.topics[topic]; ts != nil {
		for ch := range ts.subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// StopAll stops every listener and closes every subscription.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for topic, ts := range n.topics {
		ts.stop()
		for ch := range ts.subs {
			closeDrained(ch)
		}
		delete(n.topics, topic)
	}
}

// closeDrained drops a pending signal first so receivers see the close at once.
func closeDrained(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
	close(ch)
}

func (ts *topicState) stop() {
	if ts.cancel != nil {
		ts.cancel()
	}
}

// listen forwards waiter signals until ctx ends. Subscribers are woken after
// every wait, failed or not, so they re-check state; a failing waiter is
// retried with growing pauses.
func (n *DefaultNotifier) listen(ctx context.Context, topic string) {
	retry := backoff.New(n.retryBase, 20*n.retryBase)
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, topic)
		cancel()

		n.Notify(topic)

		quiet := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		if err == nil || quiet || ctx.Err() != nil {
			retry.Reset()
			continue
		}
		if backoff.Sleep(ctx, retry.Next()) != nil {
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
