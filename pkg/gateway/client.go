package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"signalhub/pkg/gateway/types"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Client is the interface to the upstream messaging gateway: the send
// primitive, a reachability probe, and the streaming event feed.
type Client interface {
	SendMessage(ctx context.Context, recipient, message string, attachments []string) (*types.SendResult, error)
	ConnectStream(ctx context.Context) (EventStream, error)
	HealthCheck(ctx context.Context) error
}

// EventStream yields raw feed records one at a time. Read blocks until a
// record arrives, the context is cancelled, or the connection fails.
type EventStream interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

type GatewayClient struct {
	baseURL     string
	authToken   string
	phoneNumber string
	client      *http.Client
	logger      *logrus.Logger
}

func NewClient(baseURL, authToken, phoneNumber string, httpClient *http.Client) Client {
	return NewClientWithLogger(baseURL, authToken, phoneNumber, httpClient, nil)
}

func NewClientWithLogger(baseURL, authToken, phoneNumber string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	baseURL = strings.TrimSuffix(baseURL, "/")

	return &GatewayClient{
		baseURL:     baseURL,
		authToken:   authToken,
		phoneNumber: phoneNumber,
		client:      httpClient,
		logger:      logger,
	}
}

func (c *GatewayClient) SendMessage(ctx context.Context, recipient, message string, attachments []string) (*types.SendResult, error) {
	payload := types.SendMessageRequest{
		Message:    message,
		Number:     c.phoneNumber,
		Recipients: []string{recipient},
	}

	if len(attachments) > 0 {
		payload.Base64Attachments = make([]string, len(attachments))
		for i, attachment := range attachments {
			encoded, err := encodeAttachment(attachment)
			if err != nil {
				return nil, fmt.Errorf("failed to encode attachment %s: %w", attachment, err)
			}
			payload.Base64Attachments[i] = encoded
		}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/send", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway API error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var result types.SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	timestamp := result.Timestamp.Int64()
	return &types.SendResult{
		Timestamp: timestamp,
		MessageID: fmt.Sprintf("%d", timestamp),
	}, nil
}

// ConnectStream dials the gateway's websocket event feed for the configured
// account. The returned stream stays open until Close or a read error.
func (c *GatewayClient) ConnectStream(ctx context.Context) (EventStream, error) {
	wsURL, err := c.streamURL()
	if err != nil {
		return nil, err
	}

	opts := &websocket.DialOptions{
		HTTPClient: c.client,
	}
	if c.authToken != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.authToken}}
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, opts)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial event feed: %w", err)
	}

	// The feed can be quiet for long stretches between messages
	conn.SetReadLimit(1 << 20)

	c.logger.WithField("endpoint", wsURL).Debug("Connected to gateway event feed")

	return &wsEventStream{conn: conn}, nil
}

func (c *GatewayClient) streamURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported gateway scheme: %s", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/receive/" + url.PathEscape(c.phoneNumber)
	return u.String(), nil
}

func (c *GatewayClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/v1/about", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway health check failed: status %d", resp.StatusCode)
	}

	var about types.AboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		return fmt.Errorf("failed to decode about response: %w", err)
	}

	c.logger.WithField("version", about.Version).Debug("Gateway reachable")
	return nil
}

type wsEventStream struct {
	conn *websocket.Conn
}

func (s *wsEventStream) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *wsEventStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "shutting down")
}

func encodeAttachment(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - attachment paths come from the authenticated admin API
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
