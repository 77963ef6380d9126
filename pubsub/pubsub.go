package pubsub

import (
	"context"

	"github.com/facebookgo/startstop"
)

// general usage:
// ps := &pubsub.LocalPubSub{}
// ps.Start()
// sub := ps.Subscribe(ctx, "topic", func(ctx context.Context, msg string) {
// 	fmt.Println(msg)
// })
// ps.Publish(ctx, "topic", "message")
// sub.Close() // optional if you want to close the subscription independently
// ps.Close()

type PubSub interface {
	// Publish sends a message to all subscribers of the topic.
	Publish(ctx context.Context, topic, message string) error
	// Subscribe calls callback for every message published to topic until the
	// subscription or the pubsub is closed. Messages reach a single
	// subscriber in the order they were published.
	Subscribe(ctx context.Context, topic string, callback SubscriptionCallback) Subscription
	// Close shuts down all subscriptions and the pubsub connection.
	Close()

	// embed startstop.Starter and startstop.Stopper so that we
	// can participate in injection
	startstop.Starter
	startstop.Stopper
}

type Subscription interface {
	// Close stops the callback from being called again. It may be called
	// more than once.
	Close()
}

type SubscriptionCallback func(ctx context.Context, msg string)
