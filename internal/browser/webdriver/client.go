// Package webdriver is a minimal W3C WebDriver client implementing the
// browser session ports. It covers only the protocol subset the automation
// needs: session lifecycle, navigation, element lookup and interaction, and
// synchronous script execution.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/slok/fieldbot/internal/browser"
	"github.com/slok/fieldbot/internal/log"
)

// elementKey is the W3C web element identifier key.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// ClientConfig configures the WebDriver client.
type ClientConfig struct {
	// URL is the WebDriver server endpoint (e.g. http://127.0.0.1:4444).
	URL string
	// Capabilities is the alwaysMatch capability set requested on new
	// sessions. Defaults to headless Chromium.
	Capabilities map[string]interface{}
	// HTTPClient is the HTTP client for protocol requests.
	HTTPClient *http.Client
	// Logger for logging.
	Logger log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("webdriver server URL is required")
	}
	c.URL = strings.TrimRight(c.URL, "/")

	if c.Capabilities == nil {
		c.Capabilities = map[string]interface{}{
			"browserName": "chrome",
			"goog:chromeOptions": map[string]interface{}{
				"args": []string{
					"--headless=new",
					"--no-sandbox",
					"--disable-dev-shm-usage",
					"--window-size=1920,1080",
				},
			},
		}
	}

	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "webdriver.Client"})

	return nil
}

// Client speaks the W3C WebDriver protocol with a remote browser.
type Client struct {
	url          string
	capabilities map[string]interface{}
	httpClient   *http.Client
	logger       log.Logger
}

// NewClient creates a new WebDriver client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		url:          cfg.URL,
		capabilities: cfg.Capabilities,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
	}, nil
}

// Status reports whether the remote end is ready to create sessions.
func (c *Client) Status(ctx context.Context) (bool, error) {
	value, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return false, err
	}

	var status statusJSON
	if err := json.Unmarshal(value, &status); err != nil {
		return false, fmt.Errorf("decoding status: %w", err)
	}

	return status.Ready, nil
}

// NewSession starts a browser session on the remote end.
func (c *Client) NewSession(ctx context.Context) (browser.Session, error) {
	payload := newSessionRequestJSON{
		Capabilities: capabilitiesJSON{AlwaysMatch: c.capabilities},
	}

	value, err := c.do(ctx, http.MethodPost, "/session", payload)
	if err != nil {
		return nil, fmt.Errorf("could not create session: %w", err)
	}

	var created newSessionJSON
	if err := json.Unmarshal(value, &created); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if created.SessionID == "" {
		return nil, fmt.Errorf("webdriver returned an empty session id")
	}

	c.logger.Debugf("session %s created", created.SessionID)

	return &session{client: c, id: created.SessionID}, nil
}

// do executes one protocol request and returns the unwrapped value field.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var wire responseJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("HTTP %d from webdriver: undecodable response", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, wireError(wire.Value)
	}

	return wire.Value, nil
}

// wireError maps a WebDriver error payload to the browser sentinel errors.
func wireError(value json.RawMessage) error {
	var werr errorJSON
	if err := json.Unmarshal(value, &werr); err != nil || werr.Error == "" {
		return fmt.Errorf("unknown webdriver error")
	}

	switch werr.Error {
	case "no such element":
		return fmt.Errorf("%s: %w", werr.Message, browser.ErrElementNotFound)
	case "invalid session id", "no such window":
		return fmt.Errorf("%s: %w", werr.Message, browser.ErrNoSession)
	case "stale element reference":
		return fmt.Errorf("%s: %w", werr.Message, browser.ErrElementNotFound)
	}

	return fmt.Errorf("webdriver error %q: %s", werr.Error, werr.Message)
}

// --- JSON wire types (private, W3C WebDriver protocol) ---

type responseJSON struct {
	Value json.RawMessage `json:"value"`
}

type errorJSON struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type statusJSON struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

type newSessionRequestJSON struct {
	Capabilities capabilitiesJSON `json:"capabilities"`
}

type capabilitiesJSON struct {
	AlwaysMatch map[string]interface{} `json:"alwaysMatch"`
}

type newSessionJSON struct {
	SessionID string `json:"sessionId"`
}

type findElementRequestJSON struct {
	Using string `json:"using"`
	Value string `json:"value"`
}

type navigateRequestJSON struct {
	URL string `json:"url"`
}

type sendKeysRequestJSON struct {
	Text string `json:"text"`
}

type executeRequestJSON struct {
	Script string        `json:"script"`
	Args   []interface{} `json:"args"`
}
