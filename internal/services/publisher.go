package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizforge-backend/internal/models"
)

// UserUpdatesChannel is the pub/sub channel the websocket hub listens on for
// a user.
func UserUpdatesChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

// Publish sends a WebSocket update via Redis pub/sub
func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("publish: encode %s message: %v", msg.Type, err)
		return
	}
	if err := p.redis.Publish(ctx, UserUpdatesChannel(userID), string(data)).Err(); err != nil {
		log.Printf("publish: %s message for user %s: %v", msg.Type, userID, err)
	}
}
