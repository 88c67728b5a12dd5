package events

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Sink is the transport a Publisher writes to.
type Sink interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Publisher serializes shipment events onto one topic, keyed by order so
// that the events of an order stay in one partition.
type Publisher struct {
	sink  Sink
	topic string
}

func NewPublisher(sink Sink, topic string) *Publisher {
	return &Publisher{sink: sink, topic: topic}
}

func (p *Publisher) PublishShipmentEvent(ctx context.Context, ev ShipmentEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal shipment event")
	}
	return p.sink.Publish(ctx, p.topic, []byte(ev.OrgID+"/"+ev.OrderID), value)
}
