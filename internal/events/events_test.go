package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDelivered(t *testing.T) {
	methodID := uuid.New()
	at := time.Date(2026, 4, 2, 10, 30, 0, 0, time.FixedZone("x", 3600))

	payload, key, err := EncodeDelivered(DeliveryData{
		DeliveryID:       uuid.New(),
		DeliveryMethodID: methodID,
		ReaderEmail:      "reader@example.com",
		DownloadCount:    2,
		IsRedownload:     true,
	}, at)
	require.NoError(t, err)
	assert.Equal(t, methodID.String(), key)

	var env map[string]any
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, EventReaderMagnetDelivered, env["event_type"])
	assert.Equal(t, "2026-04-02T09:30:00Z", env["occurred_at"])
	assert.Equal(t, "1.0", env["schema_version"])
	data := env["data"].(map[string]any)
	assert.Equal(t, true, data["is_redownload"])
	assert.NotContains(t, data, "reader_name")
}

func TestLoggingPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLoggingPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, p.Publish(context.Background(), EventReaderMagnetDelivered, []byte(`{}`), "m-1"))
	assert.Contains(t, buf.String(), `"event_type":"reader_magnet.delivered"`)
	assert.Contains(t, buf.String(), `"partition_key":"m-1"`)
}

func TestKafkaPublisherTopics(t *testing.T) {
	_, err := NewKafkaPublisher(nil, nil)
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{EventReaderMagnetDelivered: "reader-magnet-deliveries"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, "reader-magnet-deliveries", p.Topic(EventReaderMagnetDelivered))
	assert.Equal(t, "other.event", p.Topic("other.event"))
}
