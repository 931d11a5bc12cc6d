package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps blocking queue pops and pub/sub subscriptions off the
// connection pool used for ordinary commands.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	queueClient, err := connectRedis(opt, "quizforge-queue")
	if err != nil {
		return nil, err
	}

	pubsubClient, err := connectRedis(opt, "quizforge-pubsub")
	if err != nil {
		queueClient.Close()
		return nil, err
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

func connectRedis(base *redis.Options, name string) (*redis.Client, error) {
	opt := *base
	opt.ClientName = name
	// BLPOP holds a connection for its full timeout.
	opt.ReadTimeout = 35 * time.Second

	client := redis.NewClient(&opt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", name, err)
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
