package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// --- Mock implementations ---

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

// --- Tests ---

func testOrder(subCode string, status order.Status) *order.Order {
	return &order.Order{
		ID:         "id-" + subCode,
		Code:       "K1",
		SubCode:    subCode,
		Zone:       "VN",
		Status:     status,
		CustomerID: "c1",
		Products:   []order.Product{{ProductID: "p1", Quantity: 2}},
		Payment:    order.PaymentSummary{Method: "COD", Total: decimal.NewFromInt(625_000)},
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestPublisher_Publish(t *testing.T) {
	w := &mockWriter{}
	p := &Publisher{w: w}
	at := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(),
		order.Event{Type: order.EventCreated, At: at, Order: testOrder("VN-K1", order.StatusPlaced)},
		order.Event{Type: order.EventStatusChanged, At: at, Previous: order.StatusPlaced, Order: testOrder("VN-K1", order.StatusConfirmed)},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	for _, m := range w.msgs {
		assert.Equal(t, "K1", string(m.Key))
		assert.Equal(t, at, m.Time)
	}
	assert.Equal(t, "order.status_changed", string(w.msgs[1].Headers[0].Value))

	fields := map[string]string{}
	require.NoError(t, jx.DecodeBytes(w.msgs[1].Value).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type", "previousStatus":
			v, err := d.Str()
			fields[key] = v
			return err
		case "order":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "status" && key != "total" {
					return d.Skip()
				}
				v, err := d.Str()
				fields["order."+key] = v
				return err
			})
		default:
			return d.Skip()
		}
	}))
	assert.Equal(t, map[string]string{
		"type":           "order.status_changed",
		"previousStatus": "placed",
		"order.status":   "confirmed",
		"order.total":    "625000",
	}, fields)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_PublishErrors(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	p := &Publisher{w: w}

	require.NoError(t, p.Publish(context.Background()))

	err := p.Publish(context.Background(), order.Event{Type: order.EventCreated, Order: testOrder("VN-K1", order.StatusPending)})
	require.Error(t, err)

	err = (&Publisher{w: &mockWriter{}}).Publish(context.Background(), order.Event{Type: order.EventCreated})
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	require.NoError(t, Nop{}.Publish(context.Background(), order.Event{}))
}
