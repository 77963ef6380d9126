package pubsub

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/metrics"
)

// LocalPubSub is a PubSub implementation that delivers messages in-process;
// it does not communicate with any external processes. Callbacks run on the
// publisher's goroutine, so a slow subscriber slows the stream down rather
// than buffering without bound.
type LocalPubSub struct {
	Config  config.Config   `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`
	topics  map[string][]*LocalSubscription
	mut     sync.RWMutex
}

// Ensure that LocalPubSub implements PubSub
var _ PubSub = (*LocalPubSub)(nil)

type LocalSubscription struct {
	ps    *LocalPubSub
	topic string
	cb    SubscriptionCallback
	done  atomic.Bool
}

// Ensure that LocalSubscription implements Subscription
var _ Subscription = (*LocalSubscription)(nil)

var localPubSubMetrics = []metrics.Metadata{
	{Name: "local_pubsub_published", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "number of messages published"},
	{Name: "local_pubsub_received", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "number of messages delivered to subscribers"},
}

// Start initializes the LocalPubSub
func (ps *LocalPubSub) Start() error {
	if ps.Metrics == nil {
		ps.Metrics = &metrics.NullMetrics{}
	}
	for _, metric := range localPubSubMetrics {
		ps.Metrics.Register(metric)
	}
	ps.mut.Lock()
	ps.topics = make(map[string][]*LocalSubscription)
	ps.mut.Unlock()
	return nil
}

// Stop shuts down the LocalPubSub
func (ps *LocalPubSub) Stop() error {
	ps.Close()
	return nil
}

func (ps *LocalPubSub) Close() {
	ps.mut.Lock()
	defer ps.mut.Unlock()
	for _, subs := range ps.topics {
		for _, sub := range subs {
			sub.markDone()
		}
	}
	ps.topics = make(map[string][]*LocalSubscription)
}

func (ps *LocalPubSub) Publish(ctx context.Context, topic, message string) error {
	ps.mut.RLock()
	subs := ps.topics[topic]
	ps.mut.RUnlock()
	ps.Metrics.Increment("local_pubsub_published")
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sub.deliver(ctx, message) {
			ps.Metrics.Increment("local_pubsub_received")
		}
	}
	return nil
}

func (ps *LocalPubSub) Subscribe(ctx context.Context, topic string, callback SubscriptionCallback) Subscription {
	ps.mut.Lock()
	defer ps.mut.Unlock()
	sub := &LocalSubscription{
		ps:    ps,
		topic: topic,
		cb:    callback,
	}
	// copy on write so Publish can range over its snapshot without a lock
	subs := slices.Clone(ps.topics[topic])
	ps.topics[topic] = append(subs, sub)
	return sub
}

func (s *LocalSubscription) deliver(ctx context.Context, msg string) bool {
	if s.done.Load() {
		return false
	}
	s.cb(ctx, msg)
	return true
}

func (s *LocalSubscription) markDone() {
	s.done.Store(true)
}

func (s *LocalSubscription) Close() {
	s.markDone()
	s.ps.mut.Lock()
	defer s.ps.mut.Unlock()
	s.ps.topics[s.topic] = slices.DeleteFunc(slices.Clone(s.ps.topics[s.topic]), func(other *LocalSubscription) bool {
		return other == s
	})
}
