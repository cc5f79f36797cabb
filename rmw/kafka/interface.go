package kafka

import (
	"context"

	gokafka "github.com/segmentio/kafka-go"
)

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...gokafka.Message) error
	Close() error
}

type KafkaReader interface {
	ReadMessage(ctx context.Context) (gokafka.Message, error)
	SetOffset(offset int64) error
	Close() error
}
