package notifications

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes provisioning events keyed by organization so
// events for one organization stay ordered within a partition.
type KafkaNotifier struct {
	w messageWriter
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (n *KafkaNotifier) OrganizationProvisioned(ctx context.Context, evt OrganizationProvisioned) error {
	if evt.Event == "" {
		evt.Event = EventOrganizationProvisioned
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	return n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Kind + ":" + strconv.FormatInt(evt.OrganizationID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(evt.Event)},
		},
	})
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}
