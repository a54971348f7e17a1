package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func TestEventWireFormat(t *testing.T) {
	ev := Event{
		BuildID:    "b1",
		Generation: 3,
		Mode:       "production",
		Status:     "success",
		DurationMS: 12,
		Artifacts:  []string{"main.abc.js"},
		Time:       time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"build_id":"b1","generation":3,"mode":"production","status":"success",
		"duration_ms":12,"artifacts":["main.abc.js"],"time":"2026-10-18T00:00:00Z"}`, string(data))
}

func TestConnectFailureIsNetworkError(t *testing.T) {
	_, err := Connect(config.NotifyConfig{URL: "nats://127.0.0.1:1"}, nil)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryNetwork, ferrors.GetCategory(err))
}

func TestCapture(t *testing.T) {
	var c Capture
	require.NoError(t, c.Publish(t.Context(), Event{BuildID: "a"}))
	require.NoError(t, c.Publish(t.Context(), Event{BuildID: "b"}))
	assert.Len(t, c.Events(), 2)
	assert.Equal(t, "b", c.Events()[1].BuildID)
	assert.NoError(t, c.Close())
}
