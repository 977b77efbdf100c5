package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventReaderMagnetDelivered = "reader_magnet.delivered"

	sourceService = "booksweeps-delivery"
	schemaVersion = "1.0"
)

// DeliveryData is the payload of a reader_magnet.delivered event. The email
// is included because downstream consumers sync mailing lists from it.
type DeliveryData struct {
	DeliveryID       uuid.UUID `json:"delivery_id"`
	DeliveryMethodID uuid.UUID `json:"delivery_method_id"`
	BookID           uuid.UUID `json:"book_id"`
	ReaderEmail      string    `json:"reader_email"`
	ReaderName       string    `json:"reader_name,omitempty"`
	DownloadCount    int       `json:"download_count"`
	IsRedownload     bool      `json:"is_redownload"`
}

type Envelope struct {
	EventID       string       `json:"event_id"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	SourceService string       `json:"source_service"`
	SchemaVersion string       `json:"schema_version"`
	PartitionKey  string       `json:"partition_key"`
	Data          DeliveryData `json:"data"`
}

// EncodeDelivered builds the reader_magnet.delivered envelope. Events are
// partitioned by delivery method so one book's deliveries stay ordered.
func EncodeDelivered(data DeliveryData, occurredAt time.Time) (payload []byte, partitionKey string, err error) {
	partitionKey = data.DeliveryMethodID.String()
	payload, err = json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventReaderMagnetDelivered,
		OccurredAt:    occurredAt.UTC().Format(time.RFC3339),
		SourceService: sourceService,
		SchemaVersion: schemaVersion,
		PartitionKey:  partitionKey,
		Data:          data,
	})
	return payload, partitionKey, err
}
