// Package thingspeak implements a client for the ThingSpeak REST API, the
// cloud relay that buffers samples from field devices.
package thingspeak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/logging"
)

// Package-level logger specific to the thingspeak service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "thingspeak.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "thingspeak", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize thingspeak file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "thingspeak")
		closeLogger = func() error { return nil }
	}
}

// Sentinel errors for the hard failure modes the sync engine distinguishes.
var (
	ErrInvalidCredentials = errors.NewStd("thingspeak: invalid API key or insufficient permissions")
	ErrChannelNotFound    = errors.NewStd("thingspeak: channel not found")
	ErrRateLimited        = errors.NewStd("thingspeak: rate limit exceeded")
	ErrRejected           = errors.NewStd("thingspeak: update rejected")
)

// Sample is one normalized sample from a channel feed. ThingSpeak maps the
// four sensor values onto field1..field4 in channel order.
type Sample struct {
	Temperature    float64
	Humidity       float64
	SoilMoisture   float64
	LightIntensity float64
	Timestamp      time.Time
	EntryID        int64 // 0 when the relay did not report an entry id
	ChannelID      int64
}

// OutboundSample carries the values for a channel update.
type OutboundSample struct {
	Temperature    float64
	Humidity       float64
	SoilMoisture   float64
	LightIntensity float64
}

// ChannelInfo describes a channel's metadata and field labels.
type ChannelInfo struct {
	ID     int64
	Name   string
	Public bool
	Fields map[string]string
}

// Config holds the client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the production ThingSpeak endpoint configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.thingspeak.com",
		Timeout: 10 * time.Second,
	}
}

// Client provides methods for interacting with the ThingSpeak API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new ThingSpeak API client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	logger.Info("ThingSpeak client initialized",
		"base_url", config.BaseURL,
		"timeout", config.Timeout.String())

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Close releases client resources.
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing thingspeak logger: %v", err)
		}
	}
}

// feedResponse is the wire format of /channels/<id>/feeds/last.json.
// ThingSpeak returns field values as strings.
type feedResponse struct {
	CreatedAt string `json:"created_at"`
	EntryID   int64  `json:"entry_id"`
	ChannelID int64  `json:"channel_id"`
	Field1    string `json:"field1"`
	Field2    string `json:"field2"`
	Field3    string `json:"field3"`
	Field4    string `json:"field4"`
	Error     string `json:"error"`
}

// GetLatest fetches the most recent sample for a channel. The returned error
// is one of the sentinel errors above for hard API failures, or a wrapped
// transport error.
func (c *Client) GetLatest(ctx context.Context, channelID, apiKey string) (*Sample, error) {
	channelID = strings.TrimSpace(channelID)
	apiKey = strings.TrimSpace(apiKey)
	if channelID == "" || apiKey == "" {
		return nil, errors.Newf("thingspeak channel id and api key are required").
			Component("thingspeak").
			Category(errors.CategoryValidation).
			Build()
	}

	reqURL := fmt.Sprintf("%s/channels/%s/feeds/last.json?api_key=%s",
		c.config.BaseURL, url.PathEscape(channelID), url.QueryEscape(apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("thingspeak").
			Category(errors.CategoryNetwork).
			Context("channel_id", channelID).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp.StatusCode, channelID); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("unmarshaling feed response: %w", err)
	}
	if feed.Error != "" {
		return nil, errors.Newf("thingspeak returned error: %s", feed.Error).
			Component("thingspeak").
			Category(errors.CategoryCredentials).
			Context("channel_id", channelID).
			Build()
	}

	sample := &Sample{
		Temperature:    parseField(feed.Field1),
		Humidity:       parseField(feed.Field2),
		SoilMoisture:   parseField(feed.Field3),
		LightIntensity: parseField(feed.Field4),
		Timestamp:      parseTimestamp(feed.CreatedAt),
		EntryID:        feed.EntryID,
		ChannelID:      feed.ChannelID,
	}

	logger.Debug("Fetched latest sample",
		"channel_id", channelID,
		"entry_id", sample.EntryID,
		"temperature", sample.Temperature,
		"humidity", sample.Humidity,
		"taken_at", sample.Timestamp.Format(time.RFC3339))

	return sample, nil
}

// SendSample posts a channel update and returns the relay's entry id.
// A non-positive acknowledgement means the relay rejected the update.
func (c *Client) SendSample(ctx context.Context, channelID, writeKey string, sample OutboundSample) (int64, error) {
	channelID = strings.TrimSpace(channelID)
	writeKey = strings.TrimSpace(writeKey)
	if channelID == "" || writeKey == "" {
		return 0, errors.Newf("thingspeak channel id and write key are required").
			Component("thingspeak").
			Category(errors.CategoryValidation).
			Build()
	}

	form := url.Values{}
	form.Set("api_key", writeKey)
	form.Set("field1", formatField(sample.Temperature))
	form.Set("field2", formatField(sample.Humidity))
	form.Set("field3", formatField(sample.SoilMoisture))
	form.Set("field4", formatField(sample.LightIntensity))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/update", strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.New(err).
			Component("thingspeak").
			Category(errors.CategoryNetwork).
			Context("channel_id", channelID).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp.StatusCode, channelID); err != nil {
		return 0, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response body: %w", err)
	}

	// The update endpoint answers with the new entry id as plain text,
	// or 0 when the update was rejected.
	entryID, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected update response %q: %w", string(body), err)
	}
	if entryID <= 0 {
		return 0, ErrRejected
	}

	logger.Info("Sample sent to channel", "channel_id", channelID, "entry_id", entryID)
	return entryID, nil
}

// channelInfoResponse is the wire format of /channels/<id>.json.
type channelInfoResponse struct {
	Channel struct {
		ID         int64  `json:"id"`
		Name       string `json:"name"`
		PublicFlag bool   `json:"public_flag"`
		Field1     string `json:"field1"`
		Field2     string `json:"field2"`
		Field3     string `json:"field3"`
		Field4     string `json:"field4"`
	} `json:"channel"`
}

// ChannelInfo fetches channel metadata and field labels.
func (c *Client) ChannelInfo(ctx context.Context, channelID, apiKey string) (*ChannelInfo, error) {
	channelID = strings.TrimSpace(channelID)
	reqURL := fmt.Sprintf("%s/channels/%s.json?api_key=%s",
		c.config.BaseURL, url.PathEscape(channelID), url.QueryEscape(strings.TrimSpace(apiKey)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("thingspeak").
			Category(errors.CategoryNetwork).
			Context("channel_id", channelID).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp.StatusCode, channelID); err != nil {
		return nil, err
	}

	var info channelInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("unmarshaling channel info: %w", err)
	}

	fields := map[string]string{}
	if info.Channel.Field1 != "" {
		fields["field1"] = info.Channel.Field1
	}
	if info.Channel.Field2 != "" {
		fields["field2"] = info.Channel.Field2
	}
	if info.Channel.Field3 != "" {
		fields["field3"] = info.Channel.Field3
	}
	if info.Channel.Field4 != "" {
		fields["field4"] = info.Channel.Field4
	}

	return &ChannelInfo{
		ID:     info.Channel.ID,
		Name:   info.Channel.Name,
		Public: info.Channel.PublicFlag,
		Fields: fields,
	}, nil
}

// checkStatus maps ThingSpeak HTTP status codes to sentinel errors.
func checkStatus(status int, channelID string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusBadRequest:
		logger.Warn("Request rejected, invalid key or channel", "channel_id", channelID)
		return ErrInvalidCredentials
	case status == http.StatusNotFound:
		logger.Warn("Channel not found", "channel_id", channelID)
		return ErrChannelNotFound
	case status == http.StatusTooManyRequests:
		logger.Warn("Rate limit exceeded", "channel_id", channelID)
		return ErrRateLimited
	default:
		return errors.Newf("thingspeak returned status %d", status).
			Component("thingspeak").
			Category(errors.CategoryNetwork).
			Context("channel_id", channelID).
			Context("status", status).
			Build()
	}
}

// parseField parses a ThingSpeak string field, returning 0 for blank or
// malformed values. This mirrors the relay's own behavior for missing fields.
func parseField(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatField(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseTimestamp parses the relay's created_at timestamp, falling back to the
// current time when it is absent or malformed.
func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

// MaskKey obscures an API key for logs and status responses, keeping the
// last four characters.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "***"
	}
	return "***" + key[len(key)-4:]
}
