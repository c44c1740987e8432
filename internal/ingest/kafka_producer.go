package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes garage location updates keyed by garage id, so
// one garage's updates stay ordered within a partition.
type KafkaProducer struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	return &KafkaProducer{writer: w, timeout: 2 * time.Second}
}

// Validate checks a location update before it is published or applied.
func Validate(loc models.GarageLocation) error {
	if loc.GarageID == "" {
		return &models.ValidationError{Field: "garageId", Reason: "required"}
	}
	if !loc.Loc.Valid() {
		return &models.ValidationError{Field: "loc", Reason: "coordinates out of range"}
	}
	return nil
}

func (k *KafkaProducer) PublishGarageLocation(ctx context.Context, loc models.GarageLocation) error {
	if loc.Updated.IsZero() {
		loc.Updated = time.Now().UTC()
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(loc.GarageID), Value: b}); err != nil {
		return fmt.Errorf("publish garage location %s: %w", loc.GarageID, err)
	}
	return nil
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Decode parses one consumed message into a validated location update.
func Decode(m kafka.Message) (models.GarageLocation, error) {
	var loc models.GarageLocation
	if err := json.Unmarshal(m.Value, &loc); err != nil {
		return loc, fmt.Errorf("decode garage location: %w", err)
	}
	if loc.GarageID == "" && len(m.Key) > 0 {
		loc.GarageID = string(m.Key)
	}
	return loc, Validate(loc)
}
