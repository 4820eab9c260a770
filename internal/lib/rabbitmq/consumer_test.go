package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openChannel(t *testing.T, queueName string) *amqp.Channel {
	t.Helper()
	uri := amqpURI(t)

	conn, err := Connect(context.Background(), uri, 3, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	_, err = ch.QueueDeclare(queueName, false, true, false, false, nil)
	require.NoError(t, err)
	return ch
}

func TestConsumerMessage_HandleMessages(t *testing.T) {
	ch := openChannel(t, "consumer-test")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		received []string
	)
	wg.Add(2)
	handler := func(_ context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(body))
		wg.Done()
		return nil
	}
	require.NoError(t, ConsumerMessage(ctx, ch, "consumer-test", discardLogger(), handler))

	for _, msg := range []string{"hello", "world"} {
		require.NoError(t, ch.Publish("", "consumer-test", false, false, amqp.Publishing{Body: []byte(msg)}))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for messages to be processed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"hello", "world"}, received)
}

func TestConsumerMessage_ErrorsRequeueUnlessDiscarded(t *testing.T) {
	ch := openChannel(t, "nack-test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan string, 64)
	handler := func(_ context.Context, body []byte) error {
		select {
		case attempts <- string(body):
		default:
		}
		if string(body) == "poison" {
			return fmt.Errorf("decode: %w", ErrDiscard)
		}
		return fmt.Errorf("temporary failure")
	}
	require.NoError(t, ConsumerMessage(ctx, ch, "nack-test", discardLogger(), handler))

	require.NoError(t, ch.Publish("", "nack-test", false, false, amqp.Publishing{Body: []byte("poison")}))
	require.NoError(t, ch.Publish("", "nack-test", false, false, amqp.Publishing{Body: []byte("retry")}))

	seen := map[string]int{}
	deadline := time.After(10 * time.Second)
	for seen["retry"] < 2 {
		select {
		case body := <-attempts:
			seen[body]++
		case <-deadline:
			t.Fatal("requeued message was not redelivered")
		}
	}
	assert.Equal(t, 1, seen["poison"])
}
