package webdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/slok/fieldbot/internal/browser"
)

// session implements browser.Session over one WebDriver session.
type session struct {
	client *Client
	id     string

	mu     sync.Mutex
	closed bool
}

var _ browser.Session = (*session)(nil)

func (s *session) path(suffix string) string {
	return fmt.Sprintf("/session/%s%s", s.id, suffix)
}

func (s *session) do(ctx context.Context, method, suffix string, payload interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, browser.ErrNoSession
	}

	return s.client.do(ctx, method, s.path(suffix), payload)
}

func (s *session) Navigate(ctx context.Context, pageURL string) error {
	_, err := s.do(ctx, http.MethodPost, "/url", navigateRequestJSON{URL: pageURL})
	if err != nil {
		return fmt.Errorf("could not navigate to %s: %w", pageURL, err)
	}
	return nil
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	value, err := s.do(ctx, http.MethodGet, "/url", nil)
	if err != nil {
		return "", fmt.Errorf("could not get current URL: %w", err)
	}

	var current string
	if err := json.Unmarshal(value, &current); err != nil {
		return "", fmt.Errorf("decoding current URL: %w", err)
	}
	return current, nil
}

func (s *session) PageSource(ctx context.Context) (string, error) {
	value, err := s.do(ctx, http.MethodGet, "/source", nil)
	if err != nil {
		return "", fmt.Errorf("could not get page source: %w", err)
	}

	var source string
	if err := json.Unmarshal(value, &source); err != nil {
		return "", fmt.Errorf("decoding page source: %w", err)
	}
	return source, nil
}

func (s *session) Find(ctx context.Context, locator browser.Locator) (browser.Element, error) {
	payload := findElementRequestJSON{
		Using: string(locator.Strategy),
		Value: locator.Value,
	}

	value, err := s.do(ctx, http.MethodPost, "/element", payload)
	if err != nil {
		return nil, err
	}

	var ref map[string]string
	if err := json.Unmarshal(value, &ref); err != nil {
		return nil, fmt.Errorf("decoding element reference: %w", err)
	}
	id, ok := ref[elementKey]
	if !ok || id == "" {
		return nil, fmt.Errorf("webdriver returned no element reference")
	}

	return &element{session: s, id: id}, nil
}

func (s *session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}

	value, err := s.do(ctx, http.MethodPost, "/execute/sync", executeRequestJSON{Script: script, Args: args})
	if err != nil {
		return nil, fmt.Errorf("could not execute script: %w", err)
	}

	var result interface{}
	if err := json.Unmarshal(value, &result); err != nil {
		return nil, fmt.Errorf("decoding script result: %w", err)
	}
	return result, nil
}

func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_, err := s.client.do(ctx, http.MethodDelete, s.path(""), nil)
	if err != nil {
		return fmt.Errorf("could not close session: %w", err)
	}
	return nil
}

// element implements browser.Element over one W3C web element reference.
type element struct {
	session *session
	id      string
}

var _ browser.Element = (*element)(nil)

func (e *element) path(suffix string) string {
	return fmt.Sprintf("/element/%s%s", e.id, suffix)
}

func (e *element) Click(ctx context.Context) error {
	_, err := e.session.do(ctx, http.MethodPost, e.path("/click"), struct{}{})
	if err != nil {
		return fmt.Errorf("could not click element: %w", err)
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	_, err := e.session.do(ctx, http.MethodPost, e.path("/clear"), struct{}{})
	if err != nil {
		return fmt.Errorf("could not clear element: %w", err)
	}
	return nil
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	_, err := e.session.do(ctx, http.MethodPost, e.path("/value"), sendKeysRequestJSON{Text: text})
	if err != nil {
		return fmt.Errorf("could not send keys: %w", err)
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	value, err := e.session.do(ctx, http.MethodGet, e.path("/text"), nil)
	if err != nil {
		return "", fmt.Errorf("could not get element text: %w", err)
	}

	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return "", fmt.Errorf("decoding element text: %w", err)
	}
	return text, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	value, err := e.session.do(ctx, http.MethodGet, e.path("/attribute/"+url.PathEscape(name)), nil)
	if err != nil {
		return "", fmt.Errorf("could not get element attribute %q: %w", name, err)
	}

	// Missing attributes come back as a JSON null.
	var attr *string
	if err := json.Unmarshal(value, &attr); err != nil {
		return "", fmt.Errorf("decoding element attribute: %w", err)
	}
	if attr == nil {
		return "", nil
	}
	return *attr, nil
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	value, err := e.session.do(ctx, http.MethodGet, e.path("/displayed"), nil)
	if err != nil {
		return false, fmt.Errorf("could not get element visibility: %w", err)
	}

	var shown bool
	if err := json.Unmarshal(value, &shown); err != nil {
		return false, fmt.Errorf("decoding element visibility: %w", err)
	}
	return shown, nil
}
