package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "index-updates")

	err := p.Publish(context.Background(), Event{
		Key:     "movies",
		Value:   map[string]int{"updateId": 3},
		Headers: map[string]string{"kind": "ClearDocuments"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "movies", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"updateId":3}`, string(w.msgs[0].Value))
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)

	require.NoError(t, p.PublishBatch(context.Background(), []Event{{Key: "a", Value: 1}, {Key: "b", Value: 2}}))
	assert.Len(t, w.msgs, 3)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "a", Value: 1}))

	assert.Error(t, p.Publish(context.Background(), Event{Key: "a", Value: make(chan int)}))
}

func TestConsumer_CommitSemantics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		cancel: cancel,
		pending: []kafka.Message{
			{Offset: 1, Value: []byte(`{"n":1}`)},
			{Offset: 2, Value: []byte(`not json`)},
			{Offset: 3, Value: []byte(`{"n":3}`)},
		},
	}
	var seen []int
	handler := func(_ context.Context, _ []byte, value []byte) error {
		ev, err := DecodeJSON[struct{ N int }](value)
		if err != nil {
			return err
		}
		seen = append(seen, ev.N)
		if ev.N == 3 {
			return errors.New("transient")
		}
		return nil
	}

	c := newConsumer(r, "index-updates", handler)
	require.NoError(t, c.Start(ctx))

	assert.Equal(t, []int{1, 3}, seen)
	assert.Equal(t, []int64{1, 2}, r.committed)
}

func TestDecodeJSON_Poison(t *testing.T) {
	_, err := DecodeJSON[map[string]any]([]byte("{"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoison)

	var syntax *json.SyntaxError
	assert.ErrorAs(t, err, &syntax)
}
