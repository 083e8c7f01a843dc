package thingspeak

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaniai/botaniai-go/internal/errors"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func feedJSON() string {
	return `{
		"created_at": "2026-08-29T10:00:00Z",
		"entry_id": 100,
		"channel_id": 12345,
		"field1": "22.5",
		"field2": "55.0",
		"field3": "1600",
		"field4": "320"
	}`
}

func TestGetLatestSuccess(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet,
		"https://api.thingspeak.com/channels/12345/feeds/last.json",
		httpmock.NewStringResponder(http.StatusOK, feedJSON()))

	client := NewClient(DefaultConfig())
	sample, err := client.GetLatest(context.Background(), "12345", "READKEY123")
	require.NoError(t, err)

	assert.InDelta(t, 22.5, sample.Temperature, 0.001)
	assert.InDelta(t, 55.0, sample.Humidity, 0.001)
	assert.InDelta(t, 1600.0, sample.SoilMoisture, 0.001)
	assert.InDelta(t, 320.0, sample.LightIntensity, 0.001)
	assert.Equal(t, int64(100), sample.EntryID)
	assert.Equal(t, int64(12345), sample.ChannelID)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), sample.Timestamp.UTC())
}

func TestGetLatestTrimsCredentials(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet,
		"https://api.thingspeak.com/channels/12345/feeds/last.json",
		httpmock.NewStringResponder(http.StatusOK, feedJSON()))

	client := NewClient(DefaultConfig())
	_, err := client.GetLatest(context.Background(), "  12345  ", "  READKEY123  ")
	require.NoError(t, err)
}

func TestGetLatestBlankCredentials(t *testing.T) {
	client := NewClient(DefaultConfig())

	_, err := client.GetLatest(context.Background(), "  ", "key")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = client.GetLatest(context.Background(), "12345", "   ")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestGetLatestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad key", http.StatusBadRequest, ErrInvalidCredentials},
		{"missing channel", http.StatusNotFound, ErrChannelNotFound},
		{"throttled", http.StatusTooManyRequests, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupHTTPMock(t)
			httpmock.RegisterResponder(http.MethodGet,
				"https://api.thingspeak.com/channels/12345/feeds/last.json",
				httpmock.NewStringResponder(tt.status, ""))

			client := NewClient(DefaultConfig())
			_, err := client.GetLatest(context.Background(), "12345", "READKEY123")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestGetLatestMalformedFieldsParseAsZero(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet,
		"https://api.thingspeak.com/channels/12345/feeds/last.json",
		httpmock.NewStringResponder(http.StatusOK, `{
			"created_at": "2026-08-29T10:00:00Z",
			"entry_id": 101,
			"channel_id": 12345,
			"field1": "not-a-number",
			"field2": ""
		}`))

	client := NewClient(DefaultConfig())
	sample, err := client.GetLatest(context.Background(), "12345", "READKEY123")
	require.NoError(t, err)

	assert.Zero(t, sample.Temperature)
	assert.Zero(t, sample.Humidity)
	assert.Equal(t, int64(101), sample.EntryID)
}

func TestSendSample(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost,
		"https://api.thingspeak.com/update",
		httpmock.NewStringResponder(http.StatusOK, "123"))

	client := NewClient(DefaultConfig())
	entryID, err := client.SendSample(context.Background(), "12345", "WRITEKEY123", OutboundSample{
		Temperature:  22.5,
		Humidity:     55,
		SoilMoisture: 1600,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(123), entryID)
}

func TestSendSampleRejected(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost,
		"https://api.thingspeak.com/update",
		httpmock.NewStringResponder(http.StatusOK, "0"))

	client := NewClient(DefaultConfig())
	_, err := client.SendSample(context.Background(), "12345", "WRITEKEY123", OutboundSample{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestMaskKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "***Y123", MaskKey("WRITEKEY123"))
	assert.Equal(t, "***", MaskKey("abc"))
	assert.Equal(t, "***", MaskKey(""))
}
