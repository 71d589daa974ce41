package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/hub/pkg/grace"
)

func TestDiscordSinkPostsEmbed(t *testing.T) {
	var received discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewDiscordSink(srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.Dispatch(ctx, Notification{
		Kind:         KindUsage,
		Verdict:      grace.StartsToExceed,
		TargetName:   "web-1",
		ServerIP:     "10.0.0.5",
		CurrentValue: 95,
		Threshold:    80,
		HasValue:     true,
	})

	require.Len(t, received.Embeds, 1)
	assert.NotNil(t, received.Embeds[0].Color)
	assert.Equal(t, colorOrange, *received.Embeds[0].Color)
}

func TestProgressBarThresholds(t *testing.T) {
	assert.Contains(t, progressBar(50, 100), "🟢")
	assert.Contains(t, progressBar(65, 100), "🟡")
	assert.Contains(t, progressBar(85, 100), "🟠")
	assert.Contains(t, progressBar(100, 100), "🔴")
}

func TestWebhookSinkPostsPayload(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.Dispatch(ctx, Notification{
		Kind:       KindService,
		Verdict:    grace.BackToOk,
		TargetName: "web",
	})

	assert.Equal(t, "web", received.Target)
	assert.Equal(t, "back_to_ok", received.Verdict)
}
