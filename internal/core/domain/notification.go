package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of store mutation.
type EventType string

const (
	EventObjectCreate EventType = "object-create"
	EventObjectDelete EventType = "object-delete"
)

// ObjectRef describes the mutated store object.
type ObjectRef struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	ETag string `json:"eTag"`
}

// ChangeNotification is emitted by the document store for every write or
// delete and consumed by the index synchroniser.
type ChangeNotification struct {
	Account   string    `json:"account"`
	Bucket    string    `json:"bucket"`
	Object    ObjectRef `json:"object"`
	EventType EventType `json:"eventType"`
	EventTime string    `json:"eventTime"`
}

// Validate checks required fields and the event type.
func (n *ChangeNotification) Validate() error {
	switch {
	case n.Account == "":
		return &ValidationError{Field: "account", Reason: "required"}
	case n.Bucket == "":
		return &ValidationError{Field: "bucket", Reason: "required"}
	case n.Object.Key == "":
		return &ValidationError{Field: "object.key", Reason: "required"}
	case n.Object.Size < 0:
		return &ValidationError{Field: "object.size", Reason: "negative"}
	case n.EventType != EventObjectCreate && n.EventType != EventObjectDelete:
		return &ValidationError{Field: "eventType", Reason: fmt.Sprintf("unsupported %q", n.EventType)}
	}
	if _, err := time.Parse(time.RFC3339Nano, n.EventTime); err != nil {
		return &ValidationError{Field: "eventTime", Reason: "expected RFC 3339 timestamp"}
	}
	return nil
}

// DecodeChangeNotification parses and validates a notification body.
// Unknown fields are ignored; anything after the object is rejected.
func DecodeChangeNotification(body []byte) (*ChangeNotification, error) {
	var n ChangeNotification
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&n); err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}
	if dec.More() {
		return nil, &ValidationError{Field: "body", Reason: "trailing data after notification"}
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// NewChangeNotification builds a notification for a store mutation.
func NewChangeNotification(account, bucket, key string, size int64, etag string, event EventType, at time.Time) ChangeNotification {
	return ChangeNotification{
		Account:   account,
		Bucket:    bucket,
		Object:    ObjectRef{Key: key, Size: size, ETag: etag},
		EventType: event,
		EventTime: at.UTC().Format(time.RFC3339Nano),
	}
}

// MessageResult is the per-message decision of the index synchroniser.
type MessageResult int

const (
	// MessageAck acknowledges a processed or ignorable message.
	MessageAck MessageResult = iota
	// MessageDrop acknowledges a message that can never succeed.
	MessageDrop
	// MessageRetry leaves the message for redelivery.
	MessageRetry
)

func (r MessageResult) String() string {
	switch r {
	case MessageAck:
		return "ack"
	case MessageDrop:
		return "nack-permanent"
	case MessageRetry:
		return "nack-retry"
	default:
		return fmt.Sprintf("MessageResult(%d)", int(r))
	}
}
