package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChangeNotification(t *testing.T) {
	body := `{"account":"acct","bucket":"knowledge","object":{"key":"content/file/a.json","size":12,"eTag":"e1"},` +
		`"eventType":"object-create","eventTime":"2024-03-01T10:00:00.000Z","copySource":{"bucket":"x"}}`

	n, err := DecodeChangeNotification([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "content/file/a.json", n.Object.Key)
	assert.Equal(t, EventObjectCreate, n.EventType)
	assert.Equal(t, int64(12), n.Object.Size)
}

func TestDecodeChangeNotification_Invalid(t *testing.T) {
	valid := NewChangeNotification("acct", "knowledge", "content/file/a.json", 1, "e", EventObjectDelete,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		mutate func(n *ChangeNotification)
		field  string
	}{
		{"missing account", func(n *ChangeNotification) { n.Account = "" }, "account"},
		{"missing bucket", func(n *ChangeNotification) { n.Bucket = "" }, "bucket"},
		{"missing key", func(n *ChangeNotification) { n.Object.Key = "" }, "object.key"},
		{"negative size", func(n *ChangeNotification) { n.Object.Size = -1 }, "object.size"},
		{"unknown event", func(n *ChangeNotification) { n.EventType = "object-copy" }, "eventType"},
		{"bad time", func(n *ChangeNotification) { n.EventTime = "yesterday" }, "eventTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			raw, err := json.Marshal(n)
			require.NoError(t, err)

			_, err = DecodeChangeNotification(raw)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeChangeNotification([]byte("{"))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("trailing data", func(t *testing.T) {
		raw, err := json.Marshal(valid)
		require.NoError(t, err)

		_, err = DecodeChangeNotification(append(raw, []byte(` {"account":"other"}`)...))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "body", verr.Field)
	})
}

func TestMessageResult_String(t *testing.T) {
	assert.Equal(t, "ack", MessageAck.String())
	assert.Equal(t, "nack-permanent", MessageDrop.String())
	assert.Equal(t, "nack-retry", MessageRetry.String())
}

func TestErrorClassification(t *testing.T) {
	terminal := &TerminalFetchError{Path: "a.md", StatusCode: 404, Err: errors.New("gone")}
	retryable := &RetryableFetchError{Path: "a.md", StatusCode: 502, Err: errors.New("bad gateway")}
	parse := &ParseError{Path: "a.md", Err: errors.New("bad yaml")}
	transient := &TransientIndexError{Op: "upsert", Err: errors.New("timeout")}

	assert.True(t, IsTerminal(terminal))
	assert.True(t, IsTerminal(fmt.Errorf("wrapped: %w", parse)))
	assert.True(t, IsTerminal(fmt.Errorf("id: %w", ErrInvalidID)))
	assert.False(t, IsTerminal(retryable))

	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", transient)))
	assert.False(t, IsRetryable(terminal))

	assert.Contains(t, terminal.Error(), "404")
	assert.Contains(t, parse.Error(), "a.md")
}

func TestSyncReport(t *testing.T) {
	r := &SyncReport{CommitSHA: "abc", Steps: []StepRecord{
		{FilePath: "a.md", Outcome: OutcomeStored},
		{FilePath: "b.md", Outcome: OutcomeStored},
		{FilePath: "c.md", Outcome: OutcomeFailedTerminal},
		{FilePath: "d.md", Outcome: OutcomeDeleted},
	}}

	assert.Equal(t, 2, r.Count(OutcomeStored))
	assert.Len(t, r.Failures(), 1)
	step, ok := r.Step("d.md")
	require.True(t, ok)
	assert.Equal(t, OutcomeDeleted, step.Outcome)
	assert.Equal(t, "stored=2 deleted=1 skipped=0 failed-terminal=1 failed-retryable=0", r.Summary())

	assert.Error(t, SyncParams{}.Validate())
	assert.NoError(t, SyncParams{CommitSHA: "abc"}.Validate())
}
