package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossedThreshold(t *testing.T) {
	cases := []struct {
		name                     string
		before, after, threshold int
		want                     bool
	}{
		{"drops onto threshold", 6, 5, 5, true},
		{"drops below threshold", 10, 2, 5, true},
		{"already at threshold", 5, 4, 5, false},
		{"stays above", 10, 6, 5, false},
		{"restock", 2, 10, 5, false},
		{"alerting disabled", 10, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CrossedThreshold(tc.before, tc.after, tc.threshold))
		})
	}
}

type memoryOutbox struct {
	messages []Message
	err      error
}

func (m *memoryOutbox) EnqueueMessage(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func TestOutboxPublisher(t *testing.T) {
	outbox := &memoryOutbox{}
	pub := NewOutboxPublisher(outbox, func() string { return "msg-1" })
	at := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)

	err := pub.Publish(context.Background(), Event{
		Kind:       KindLowStock,
		OccurredAt: at,
		LowStock:   &LowStock{EquipmentID: "eq-1", Name: "Osciloscopio", OldQuantity: 6, NewQuantity: 4, Threshold: 5},
	})
	require.NoError(t, err)
	require.Len(t, outbox.messages, 1)

	msg := outbox.messages[0]
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, string(KindLowStock), msg.Kind)
	assert.True(t, msg.CreatedAt.Equal(at))

	var decoded LowStock
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, 4, decoded.NewQuantity)
	assert.Equal(t, 5, decoded.Threshold)
}

func TestEventPayloadRequiresBody(t *testing.T) {
	_, err := Event{Kind: KindReservationCreated}.Payload()
	assert.Error(t, err)

	_, err = Event{Kind: "unknown"}.Payload()
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := pub.Publish(context.Background(), Event{
		Kind:               KindReservationCreated,
		ReservationCreated: &ReservationCreated{LabName: "MAC", Count: 3},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"kind":"reservation.created"`)
	assert.Contains(t, buf.String(), `"lab_name":"MAC"`)
}

func TestFanoutJoinsErrors(t *testing.T) {
	failing := &memoryOutbox{err: errors.New("disk full")}
	ok := &memoryOutbox{}
	fan := Fanout{NewOutboxPublisher(failing, nil), nil, NewOutboxPublisher(ok, nil)}

	err := fan.Publish(context.Background(), Event{Kind: KindLowStock, LowStock: &LowStock{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, ok.messages, 1)
}
