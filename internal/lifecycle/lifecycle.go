// Package lifecycle tells interested parties that the engine started or
// stopped.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/tileserver/internal/core/config"
)

const (
	Started = "started"
	Stopped = "stopped"
)

type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	HomeAddress string    `json:"homeAddress"`
	RootPath    string    `json:"rootPath"`
	At          time.Time `json:"at"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(typ, home, root string) Event {
	return Event{ID: uuid.NewString(), Type: typ, HomeAddress: home, RootPath: root, At: time.Now().UTC()}
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }

// Log writes events to a logger.
type Log struct {
	L *slog.Logger
}

func (n Log) Notify(ctx context.Context, ev Event) error {
	l := n.L
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "tile server "+ev.Type,
		"event_id", ev.ID,
		"home", ev.HomeAddress,
		"root", ev.RootPath,
	)
	return nil
}

func (Log) Close() error { return nil }

// Kafka publishes events as JSON, keyed by home address.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

// DialKafka connects a synchronous producer to brokers.
func DialKafka(brokers []string, topic string) (*Kafka, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return NewKafka(prod, topic), nil
}

func (k *Kafka) Notify(_ context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.HomeAddress),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("send %s event: %w", ev.Type, err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.producer.Close() }

// FromConfig builds the notifier selected by cfg.LifecycleDriver.
func FromConfig(cfg config.Config, log *slog.Logger) (Notifier, error) {
	switch cfg.LifecycleDriver {
	case config.DriverNone:
		return Nop{}, nil
	case config.DriverKafka:
		k, err := DialKafka(cfg.Brokers(), cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return k, nil
	case config.DriverLog, "":
		return Log{L: log}, nil
	default:
		return nil, fmt.Errorf("unknown lifecycle driver %q", cfg.LifecycleDriver)
	}
}
