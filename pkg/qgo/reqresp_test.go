package qgo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTemplate(t *testing.T, opts ...Opt) (*RequestTemplate, *TopicRegistry) {
	t.Helper()
	r := NewTopicRegistry()
	tmpl, err := NewRequestTemplate(r.Producer("requests"), r.Consumer("responses"),
		append([]Opt{PollInterval(5 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(tmpl.Stop)
	return tmpl, r
}

// echoResponder drains the requests topic and answers every request on the
// responses topic, copying the correlation header.
func echoResponder(t *testing.T, r *TopicRegistry, delay time.Duration) {
	t.Helper()
	consumer := r.Consumer("requests")
	producer := r.Producer("responses")
	quit := make(chan struct{})
	t.Cleanup(func() { close(quit); consumer.Unsubscribe() })
	go func() {
		for {
			select {
			case <-quit:
				return
			default:
			}
			for _, req := range consumer.Poll(5 * time.Millisecond) {
				if delay > 0 {
					time.Sleep(delay)
				}
				id, ok := req.Header(requestIDHeader)
				if !ok {
					continue
				}
				resp := &Message{Value: append([]byte("echo:"), req.Value...)}
				resp.SetHeader(requestIDHeader, id)
				producer.Send(TopicPartitionInfo{}, resp, nil)
			}
		}
	}()
}

func TestRequestResponseRoundTrip(t *testing.T) {
	tmpl, r := newTestTemplate(t, RequestTimeout(5*time.Second))
	echoResponder(t, r, 0)

	call, err := tmpl.Send(&Message{Value: []byte("ping")})
	require.NoError(t, err)

	resp, err := call.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "echo:ping", string(resp.Value))
}

func TestRequestIDsAreUnique(t *testing.T) {
	tmpl, r := newTestTemplate(t, RequestTimeout(5*time.Second))
	echoResponder(t, r, 0)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		call, err := tmpl.Send(&Message{Value: []byte("ping")})
		require.NoError(t, err)
		resp, err := call.Await(context.Background())
		require.NoError(t, err)
		id, ok := resp.Header(requestIDHeader)
		require.True(t, ok)
		require.False(t, seen[string(id)], "request id reused")
		seen[string(id)] = true
	}
}

func TestRequestTimesOutWithoutResponder(t *testing.T) {
	tmpl, _ := newTestTemplate(t, RequestTimeout(50*time.Millisecond))

	start := time.Now()
	call, err := tmpl.Send(&Message{Value: []byte("ping")})
	require.NoError(t, err)

	_, err = call.Await(context.Background())
	require.ErrorIs(t, err, ErrRequestTimeout)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)
}

func TestLateResponseLosesToTimeout(t *testing.T) {
	tmpl, r := newTestTemplate(t, RequestTimeout(30*time.Millisecond))
	echoResponder(t, r, 200*time.Millisecond)

	call, err := tmpl.Send(&Message{Value: []byte("ping")})
	require.NoError(t, err)

	resp, err := call.Await(context.Background())
	require.ErrorIs(t, err, ErrRequestTimeout)
	require.Nil(t, resp)

	// The late response arrives, finds no pending entry, and is discarded;
	// the completed call is not completed twice.
	time.Sleep(400 * time.Millisecond)
	_, err = call.Await(context.Background())
	require.ErrorIs(t, err, ErrRequestTimeout)
}

func TestPendingLimitRejectsSynchronously(t *testing.T) {
	tmpl, _ := newTestTemplate(t, MaxPendingRequests(2), RequestTimeout(10*time.Second))

	_, err := tmpl.Send(&Message{})
	require.NoError(t, err)
	_, err = tmpl.Send(&Message{})
	require.NoError(t, err)
	_, err = tmpl.Send(&Message{})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestResponseForUnknownRequestIsDiscarded(t *testing.T) {
	tmpl, r := newTestTemplate(t, RequestTimeout(5*time.Second))
	echoResponder(t, r, 0)

	stray := &Message{Value: []byte("stray")}
	stray.SetHeader(requestIDHeader, []byte("never-issued"))
	r.Producer("responses").Send(TopicPartitionInfo{}, stray, nil)
	r.Producer("responses").Send(TopicPartitionInfo{}, &Message{Value: []byte("headerless")}, nil)

	call, err := tmpl.Send(&Message{Value: []byte("ping")})
	require.NoError(t, err)
	resp, err := call.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "echo:ping", string(resp.Value))
}

func TestStopCancelsOutstandingCalls(t *testing.T) {
	r := NewTopicRegistry()
	tmpl, err := NewRequestTemplate(r.Producer("requests"), r.Consumer("responses"),
		PollInterval(5*time.Millisecond), RequestTimeout(10*time.Second))
	require.NoError(t, err)

	call, err := tmpl.Send(&Message{})
	require.NoError(t, err)

	tmpl.Stop()

	_, err = call.Await(context.Background())
	require.ErrorIs(t, err, ErrTemplateStopped)

	_, err = tmpl.Send(&Message{})
	require.ErrorIs(t, err, ErrTemplateStopped)

	tmpl.Stop() // idempotent
}

func TestAwaitHonorsCallerContext(t *testing.T) {
	tmpl, _ := newTestTemplate(t, RequestTimeout(10*time.Second))

	call, err := tmpl.Send(&Message{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = call.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestOutcomeHooks(t *testing.T) {
	outcomes := make(chan RequestOutcome, 16)
	r := NewTopicRegistry()
	tmpl, err := NewRequestTemplate(r.Producer("requests"), r.Consumer("responses"),
		PollInterval(5*time.Millisecond),
		RequestTimeout(30*time.Millisecond),
		MaxPendingRequests(1),
		WithHooks(requestHook{func(o RequestOutcome, _ int) { outcomes <- o }}))
	require.NoError(t, err)
	t.Cleanup(tmpl.Stop)

	call, err := tmpl.Send(&Message{})
	require.NoError(t, err)
	_, err = tmpl.Send(&Message{})
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, RequestRejected, <-outcomes)

	_, err = call.Await(context.Background())
	require.ErrorIs(t, err, ErrRequestTimeout)
	require.Equal(t, RequestTimedOut, <-outcomes)
}

type requestHook struct {
	done func(RequestOutcome, int)
}

func (h requestHook) OnRequestDone(outcome RequestOutcome, pending int) { h.done(outcome, pending) }
