package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.CreateTopic(context.Background(), "runs")
	require.NoError(t, err)
	return srv, client
}

func TestPublishSendsJSONToDefaultTopic(t *testing.T) {
	srv, client := newTestClient(t)
	pub := New(client, "runs")
	defer func() { require.NoError(t, pub.Close()) }()

	id, err := pub.Publish(context.Background(), "", map[string]any{"run_id": "r1", "artifacts": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, "r1", decoded["run_id"])
	require.EqualValues(t, 3, decoded["artifacts"])
}

func TestPublishInjectsTraceContext(t *testing.T) {
	srv, client := newTestClient(t)
	pub := New(client, "runs")
	defer func() { require.NoError(t, pub.Close()) }()

	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	_, err = pub.Publish(ctx, "runs", "payload")
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Attributes["traceparent"], "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestPublishRequiresTopic(t *testing.T) {
	_, client := newTestClient(t)
	pub := New(client, "")

	_, err := pub.Publish(context.Background(), "", "payload")
	require.ErrorContains(t, err, "topic is required")
}

func TestPublishUnconfigured(t *testing.T) {
	t.Parallel()

	var pub *Publisher
	_, err := pub.Publish(context.Background(), "t", "payload")
	require.Error(t, err)
	require.NoError(t, pub.Close())
}

func TestCarrierKeys(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("a", "1")
	require.Equal(t, "1", c.Get("a"))
	require.Equal(t, []string{"a"}, c.Keys())
}
