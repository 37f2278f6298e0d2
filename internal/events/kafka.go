// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events to a topic, keyed by checkout code so every
// sub-order of a checkout lands on the same partition in order.
type Publisher struct {
	w messageWriter
}

// NewPublisher returns a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

// Publish writes events in a single batch.
func (p *Publisher) Publish(ctx context.Context, events ...order.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		if e.Order == nil {
			return errors.Errorf("event %s without order", e.Type)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(e.Order.Code),
			Value: Encode(e),
			Time:  e.At.UTC(),
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		}
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write order events")
	}
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// Encode renders e as the JSON message value.
func Encode(e order.Event) []byte {
	o := e.Order
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))
	if e.Previous != "" {
		enc.FieldStart("previousStatus")
		enc.Str(string(e.Previous))
	}
	enc.FieldStart("order")
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(o.ID)
	enc.FieldStart("code")
	enc.Str(o.Code)
	enc.FieldStart("subCode")
	enc.Str(o.SubCode)
	enc.FieldStart("zone")
	enc.Str(o.Zone)
	enc.FieldStart("status")
	enc.Str(string(o.Status))
	enc.FieldStart("customerId")
	enc.Str(o.CustomerID)
	enc.FieldStart("paymentMethod")
	enc.Str(o.Payment.Method)
	enc.FieldStart("total")
	enc.Str(o.Payment.Total.String())
	enc.FieldStart("isCrossBorder")
	enc.Bool(o.IsCrossBorder)
	enc.FieldStart("products")
	enc.ArrStart()
	for _, p := range o.Products {
		enc.ObjStart()
		enc.FieldStart("productId")
		enc.Str(p.ProductID)
		enc.FieldStart("quantity")
		enc.Int(p.Quantity)
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.ObjEnd()
	enc.ObjEnd()
	return enc.Bytes()
}

// Nop discards events. It stands in when no brokers are configured.
type Nop struct{}

var _ order.Publisher = Nop{}

// Publish implements order.Publisher.
func (Nop) Publish(context.Context, ...order.Event) error { return nil }
