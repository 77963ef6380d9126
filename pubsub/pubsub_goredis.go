package pubsub

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/logger"
	"github.com/honeycombio/firehose/metrics"
)

// GoRedisPubSub is a PubSub implementation that uses Redis as the message broker
// and the go-redis library to interact with Redis. Records published by one
// firehose process can be consumed by any number of others.
type GoRedisPubSub struct {
	Config  config.Config   `inject:""`
	Logger  logger.Logger   `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`
	client  redis.UniversalClient
	subs    []*GoRedisSubscription
	mut     sync.RWMutex
	prefix  string // Redis channel prefix for namespacing topics
}

// Ensure that GoRedisPubSub implements PubSub
var _ PubSub = (*GoRedisPubSub)(nil)

type GoRedisSubscription struct {
	topic  string
	pubsub *redis.PubSub
	cb     SubscriptionCallback
	done   chan struct{}
	once   sync.Once
}

// Ensure that GoRedisSubscription implements Subscription
var _ Subscription = (*GoRedisSubscription)(nil)

var goredisPubSubMetrics = []metrics.Metadata{
	{Name: "redis_pubsub_published", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "Number of messages published to Redis PubSub"},
	{Name: "redis_pubsub_received", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "Number of messages received from Redis PubSub"},
}

// topicWithPrefix returns the channel name for topic: "<prefix>:<topic>", or
// just topic when no prefix is configured.
func (ps *GoRedisPubSub) topicWithPrefix(topic string) string {
	if ps.prefix == "" {
		return topic
	}
	return ps.prefix + ":" + topic
}

func (ps *GoRedisPubSub) Start() error {
	if ps.Logger == nil {
		ps.Logger = &logger.NullLogger{}
	}
	if ps.Metrics == nil {
		ps.Metrics = &metrics.NullMetrics{}
	}

	options := &redis.UniversalOptions{Addrs: []string{"localhost:6379"}}
	if ps.Config != nil {
		redisCfg := ps.Config.GetPublisherConfig().Redis
		ps.prefix = redisCfg.Prefix
		if ps.prefix != "" {
			ps.Logger.Info().WithString("prefix", ps.prefix).Logf("using Redis channel prefix")
		}

		options.Addrs = []string{redisCfg.Host}
		options.Username = redisCfg.Username
		options.Password = redisCfg.Password
		options.DB = redisCfg.Database

		if redisCfg.UseTLS {
			ps.Logger.Info().Logf("using TLS with Redis")
			options.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}
	}

	ps.Logger.Info().WithField("hosts", options.Addrs).Logf("using Redis universal client")
	client := redis.NewUniversalClient(options)

	for _, metric := range goredisPubSubMetrics {
		ps.Metrics.Register(metric)
	}

	ps.mut.Lock()
	ps.client = client
	ps.subs = make([]*GoRedisSubscription, 0)
	ps.mut.Unlock()
	return nil
}

func (ps *GoRedisPubSub) Stop() error {
	ps.Close()
	return nil
}

func (ps *GoRedisPubSub) Close() {
	ps.mut.Lock()
	defer ps.mut.Unlock()
	for _, sub := range ps.subs {
		sub.Close()
	}
	ps.subs = nil
	if ps.client != nil {
		ps.client.Close()
		ps.client = nil
	}
}

// Ping checks that Redis is reachable.
func (ps *GoRedisPubSub) Ping(ctx context.Context) error {
	ps.mut.RLock()
	defer ps.mut.RUnlock()
	if ps.client == nil {
		return redis.ErrClosed
	}
	return ps.client.Ping(ctx).Err()
}

func (ps *GoRedisPubSub) Publish(ctx context.Context, topic, message string) error {
	ps.mut.RLock()
	client := ps.client
	ps.mut.RUnlock()
	if client == nil {
		return redis.ErrClosed
	}
	if err := client.Publish(ctx, ps.topicWithPrefix(topic), message).Err(); err != nil {
		return err
	}
	ps.Metrics.Increment("redis_pubsub_published")
	return nil
}

// Subscribe creates a new Subscription to the given topic, and calls the
// provided callback, one message at a time, whenever a message is received
// on that topic. Each Subscription holds its own connection to Redis.
func (ps *GoRedisPubSub) Subscribe(ctx context.Context, topic string, callback SubscriptionCallback) Subscription {
	sub := &GoRedisSubscription{
		topic: topic,
		cb:    callback,
		done:  make(chan struct{}),
	}
	ps.mut.RLock()
	client := ps.client
	ps.mut.RUnlock()
	if client == nil {
		sub.Close()
		return sub
	}

	sub.pubsub = client.Subscribe(ctx, ps.topicWithPrefix(topic))
	// wait for the confirmation so nothing published after we return is missed
	if _, err := sub.pubsub.Receive(ctx); err != nil {
		ps.Logger.Error().WithString("topic", topic).Logf("failed to subscribe: %v", err)
	}
	ps.mut.Lock()
	ps.subs = append(ps.subs, sub)
	ps.mut.Unlock()

	go func() {
		defer sub.pubsub.Close()
		redisch := sub.pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-redisch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				ps.Metrics.Increment("redis_pubsub_received")
				sub.cb(context.Background(), msg.Payload)
			}
		}
	}()
	return sub
}

func (s *GoRedisSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}
