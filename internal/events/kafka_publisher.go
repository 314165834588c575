// README: Kafka publisher for ride lifecycle events, keyed by ride id so each ride stays ordered.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

const (
	writeTimeout = 2 * time.Second
	// Publishes are synchronous inside the request, so batches flush almost at once.
	batchTimeout = 5 * time.Millisecond
)

// RideEvent is the wire form of a committed ride transition.
type RideEvent struct {
	Type        string         `json:"type"`
	RideID      types.ID       `json:"rideId"`
	From        ride.Status    `json:"from"`
	To          ride.Status    `json:"to"`
	ActorType   ride.ActorType `json:"actorType"`
	ActorID     *types.ID      `json:"actorId,omitempty"`
	PassengerID types.ID       `json:"passengerId"`
	DriverID    *types.ID      `json:"driverId,omitempty"`
	Price       float64        `json:"price"`
	At          time.Time      `json:"at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
	})
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) PublishRideEvent(ctx context.Context, r *ride.Ride, e *ride.Event) error {
	b, err := json.Marshal(toRideEvent(r, e))
	if err != nil {
		return fmt.Errorf("encode ride event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(r.ID), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func toRideEvent(r *ride.Ride, e *ride.Event) RideEvent {
	return RideEvent{
		Type:        "ride." + string(e.ToStatus),
		RideID:      r.ID,
		From:        e.FromStatus,
		To:          e.ToStatus,
		ActorType:   e.ActorType,
		ActorID:     e.ActorID,
		PassengerID: r.PassengerID,
		DriverID:    r.DriverID,
		Price:       r.Price,
		At:          e.CreatedAt,
	}
}
