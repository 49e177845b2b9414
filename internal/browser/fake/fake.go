// Package fake implements a scripted in-memory browser session. It parses
// scripted HTML pages into real DOM trees and resolves locators against
// them, so extraction and update logic can be exercised without a browser.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/slok/fieldbot/internal/browser"
	"github.com/slok/fieldbot/internal/log"
)

// SessionConfig is the configuration for the fake session.
type SessionConfig struct {
	// Pages maps URLs to their HTML documents.
	Pages map[string]string
	// StartURL is the page loaded when the session starts. Empty means no
	// page is loaded until the first Navigate.
	StartURL string
	// Logger for logging.
	Logger log.Logger
}

func (c *SessionConfig) defaults() error {
	if c.StartURL != "" {
		if _, ok := c.Pages[c.StartURL]; !ok {
			return fmt.Errorf("start URL %q has no scripted page", c.StartURL)
		}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "browser.Fake"})

	return nil
}

type injection struct {
	remaining int
	err       error
}

// Session is a fake implementation of the browser.Session interface.
// It simulates page interaction against scripted HTML documents.
type Session struct {
	mu sync.Mutex

	raw     map[string]string
	docs    map[string]*html.Node
	current string
	doc     *html.Node
	closed  bool

	values       map[*html.Node]string
	clickHooks   map[string]func()
	injections   map[string]*injection
	interactions []string

	logger log.Logger
}

var _ browser.Session = (*Session)(nil)

// NewSession creates a new fake session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		raw:        map[string]string{},
		docs:       map[string]*html.Node{},
		values:     map[*html.Node]string{},
		clickHooks: map[string]func(){},
		injections: map[string]*injection{},
		logger:     cfg.Logger,
	}

	for url, page := range cfg.Pages {
		if err := s.setPage(url, page); err != nil {
			return nil, err
		}
	}

	if cfg.StartURL != "" {
		s.current = cfg.StartURL
		s.doc = s.docs[cfg.StartURL]
	}

	return s, nil
}

// SetPage scripts or replaces a page. Replacing the currently loaded page
// swaps the live DOM too, which is how click hooks simulate the page
// reacting to an interaction.
func (s *Session) SetPage(url, page string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPage(url, page)
}

func (s *Session) setPage(url, page string) error {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return fmt.Errorf("could not parse page %s: %w", url, err)
	}

	s.raw[url] = page
	s.docs[url] = doc
	if s.current == url {
		s.doc = doc
	}
	return nil
}

// OnClick registers a hook run when an element resolved through the given
// locator value is clicked.
func (s *Session) OnClick(locatorValue string, hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickHooks[locatorValue] = hook
}

// InjectFailure makes the next n operations of the given kind fail with err.
// Kinds: "navigate", "find", "click", "clear", "sendkeys", "script".
func (s *Session) InjectFailure(kind string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injections[kind] = &injection{remaining: n, err: err}
}

// Interactions returns the recorded interaction log.
func (s *Session) Interactions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.interactions))
	copy(out, s.interactions)
	return out
}

// Value returns the typed-in value of the element matching the selector.
func (s *Session) Value(cssSelector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.find(browser.CSS(cssSelector))
	if err != nil {
		return "", err
	}
	if v, ok := s.values[node]; ok {
		return v, nil
	}
	return attrValue(node, "value"), nil
}

func (s *Session) record(format string, args ...interface{}) {
	s.interactions = append(s.interactions, fmt.Sprintf(format, args...))
}

func (s *Session) takeFailure(kind string) error {
	inj := s.injections[kind]
	if inj == nil || inj.remaining <= 0 {
		return nil
	}
	inj.remaining--
	return inj.err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return browser.ErrNoSession
	}
	s.record("navigate %s", url)
	if err := s.takeFailure("navigate"); err != nil {
		return err
	}

	doc, ok := s.docs[url]
	if !ok {
		return fmt.Errorf("no page scripted for %s", url)
	}

	s.current = url
	s.doc = doc
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", browser.ErrNoSession
	}
	return s.current, nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", browser.ErrNoSession
	}
	if s.current == "" {
		return "", fmt.Errorf("no page loaded")
	}
	return s.raw[s.current], nil
}

func (s *Session) Find(ctx context.Context, locator browser.Locator) (browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, browser.ErrNoSession
	}
	if err := s.takeFailure("find"); err != nil {
		return nil, err
	}

	node, err := s.find(locator)
	if err != nil {
		return nil, err
	}

	return &Element{session: s, node: node, locator: locator}, nil
}

func (s *Session) find(locator browser.Locator) (*html.Node, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}

	var match func(*html.Node) bool
	switch locator.Strategy {
	case browser.StrategyCSS:
		sel, err := parseSelector(locator.Value)
		if err != nil {
			return nil, err
		}
		match = sel.matches

	case browser.StrategyTagName:
		match = func(n *html.Node) bool { return n.Data == locator.Value }

	case browser.StrategyLinkText:
		match = func(n *html.Node) bool {
			return n.Data == "a" && textContent(n) == locator.Value
		}

	case browser.StrategyPartialLinkText:
		match = func(n *html.Node) bool {
			return n.Data == "a" && strings.Contains(textContent(n), locator.Value)
		}

	default:
		// XPath is not supported by the fake, it simply never matches.
		return nil, fmt.Errorf("%s: %w", locator, browser.ErrElementNotFound)
	}

	node := findFirst(s.doc, match)
	if node == nil {
		return nil, fmt.Errorf("%s: %w", locator, browser.ErrElementNotFound)
	}
	return node, nil
}

func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, browser.ErrNoSession
	}
	s.record("script %s", firstLine(script))
	if err := s.takeFailure("script"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Element is a fake implementation of the browser.Element interface.
type Element struct {
	session *Session
	node    *html.Node
	locator browser.Locator
}

var _ browser.Element = (*Element)(nil)

func (e *Element) Click(ctx context.Context) error {
	s := e.session
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return browser.ErrNoSession
	}
	s.record("click %s", e.locator.Value)
	if err := s.takeFailure("click"); err != nil {
		s.mu.Unlock()
		return err
	}

	hook := s.clickHooks[e.locator.Value]
	s.mu.Unlock()

	// Hooks run unlocked so they can call SetPage.
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return browser.ErrNoSession
	}
	s.record("clear %s", e.locator.Value)
	if err := s.takeFailure("clear"); err != nil {
		return err
	}

	s.values[e.node] = ""
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return browser.ErrNoSession
	}
	s.record("sendkeys %s %s", e.locator.Value, text)
	if err := s.takeFailure("sendkeys"); err != nil {
		return err
	}

	s.values[e.node] += text
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", browser.ErrNoSession
	}
	return textContent(e.node), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", browser.ErrNoSession
	}
	if name == "value" {
		if v, ok := s.values[e.node]; ok {
			return v, nil
		}
	}
	return attrValue(e.node, name), nil
}

// Displayed reports false for elements carrying the hidden attribute, a
// hidden class, or an inline display:none style.
func (e *Element) Displayed(ctx context.Context) (bool, error) {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, browser.ErrNoSession
	}

	if _, ok := lookupAttr(e.node, "hidden"); ok {
		return false, nil
	}
	if hasClass(e.node, "hidden") {
		return false, nil
	}
	style := strings.ReplaceAll(attrValue(e.node, "style"), " ", "")
	if strings.Contains(style, "display:none") {
		return false, nil
	}
	return true, nil
}
