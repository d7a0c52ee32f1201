package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "grpc-queue-service/internal/domain/queue"
)

func testEvent() domain.Event {
	return domain.Event{
		Type:          domain.EventTicketCalled,
		QueueID:       "q-1",
		EntryID:       "e-1",
		UserID:        "user-a",
		TicketNumber:  3,
		CurrentNumber: 3,
		TotalInQueue:  2,
		Timestamp:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	pub := NewRedisPublisher(client, "queue-events", zaptest.NewLogger(t))

	sub := client.Subscribe(ctx, "queue-events", pub.QueueChannel("q-1"))
	t.Cleanup(func() { _ = sub.Close() })
	// Wait for both subscription confirmations.
	for range 2 {
		_, err := sub.Receive(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, pub.Publish(ctx, testEvent()))

	seen := map[string]domain.Event{}
	ch := sub.Channel()
	for range 2 {
		select {
		case msg := <-ch:
			var ev domain.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			seen[msg.Channel] = ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	require.Contains(t, seen, "queue-events")
	require.Contains(t, seen, "queue-events:q-1")
	assert.Equal(t, domain.EventTicketCalled, seen["queue-events"].Type)
	assert.Equal(t, int64(3), seen["queue-events:q-1"].TicketNumber)
}

func TestRedisPublisher_ClosedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Close())

	pub := NewRedisPublisher(client, "queue-events", zaptest.NewLogger(t))
	err := pub.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish ticket_called to redis")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev domain.Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.QueueID != "q-1" || ev.Type != domain.EventTicketCalled {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "queue-events", zaptest.NewLogger(t))
	require.NoError(t, pub.Publish(context.Background(), testEvent()))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_SendFails(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "queue-events", zaptest.NewLogger(t))
	err := pub.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

// recordingProducer captures messages instead of sending them.
type recordingProducer struct {
	sarama.SyncProducer
	sent []*sarama.ProducerMessage
}

func (r *recordingProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	r.sent = append(r.sent, msg)
	return 0, int64(len(r.sent)), nil
}

func TestKafkaPublisher_KeyedByQueue(t *testing.T) {
	rec := &recordingProducer{}
	pub := NewKafkaPublisherWithProducer(rec, "queue-events", zaptest.NewLogger(t))

	ev := testEvent()
	require.NoError(t, pub.Publish(context.Background(), ev))
	ev.QueueID = "q-2"
	require.NoError(t, pub.Publish(context.Background(), ev))

	require.Len(t, rec.sent, 2)
	for i, want := range []string{"q-1", "q-2"} {
		msg := rec.sent[i]
		assert.Equal(t, "queue-events", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, want, string(key))
		assert.Equal(t, []byte("event_type"), msg.Headers[0].Key)
		assert.Equal(t, []byte("ticket_called"), msg.Headers[0].Value)
	}
}

func TestNewSaramaConfig(t *testing.T) {
	sc := NewSaramaConfig(KafkaConfig{RetryMax: 4, Timeout: 3 * time.Second})
	assert.True(t, sc.Producer.Return.Successes)
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, 4, sc.Producer.Retry.Max)
	assert.Equal(t, 3*time.Second, sc.Producer.Timeout)
	assert.Equal(t, 1, sc.Net.MaxOpenRequests)
}

type stubPublisher struct {
	err   error
	calls int
}

func (s *stubPublisher) Publish(context.Context, domain.Event) error {
	s.calls++
	return s.err
}

func TestFanout_Publish(t *testing.T) {
	failing := &stubPublisher{err: errors.New("broker down")}
	ok := &stubPublisher{}

	err := Fanout{failing, ok}.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls, "later publishers still receive the event")

	assert.NoError(t, Fanout{ok}.Publish(context.Background(), testEvent()))
	assert.NoError(t, Fanout(nil).Publish(context.Background(), testEvent()))
}
