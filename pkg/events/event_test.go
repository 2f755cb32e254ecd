package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIndexed_CarriesError(t *testing.T) {
	e := DocumentIndexed("u1", "s1", "uploads/s1/a.pdf", 0, 0, "failed", errors.New("bad pdf"))

	assert.Equal(t, TypeDocumentIndexed, e.EventType())
	assert.Equal(t, "bad pdf", e.Payload()["error"])
	assert.Equal(t, "u1", e.Payload()["user_id"])
	assert.False(t, e.Timestamp().IsZero())
}

func TestEnvelope_SurvivesJSON(t *testing.T) {
	in := ToEnvelope(SessionCleaned("s1", 3, 4))

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Envelope
	require.NoError(t, json.Unmarshal(data, &out))

	ev := out.Event()
	assert.Equal(t, TypeSessionCleaned, ev.EventType())
	assert.Equal(t, "s1", ev.Payload()["session_id"])
	assert.True(t, in.OccurredAt.Equal(ev.Timestamp()))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), TurnCommitted("u", "s", "qa1", 3)))
	p.Close()
}
