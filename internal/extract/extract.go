// Package extract opens the tracker's work-item list and produces the
// normalized list of work items. The target UI renders result sets in
// several layouts depending on version and view, so extraction tries known
// layouts in a fixed priority order and keeps the first one that yields
// items.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/slok/fieldbot/internal/browser"
	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/throttle"
)

const loadingPollInterval = 100 * time.Millisecond

// loadingIndicators are the known loading overlays that hide results while
// the page is still rendering.
var loadingIndicators = []browser.Locator{
	browser.CSS(".loading-indicator"),
	browser.CSS(".spinner"),
	browser.CSS("[aria-busy=true]"),
}

// ServiceConfig is the configuration of the extraction service.
type ServiceConfig struct {
	Session browser.Session
	// BaseURL resolves relative item links into absolute URLs.
	BaseURL string
	// ListURL is the page listing the work items, opened before every
	// extraction. Defaults to BaseURL.
	ListURL string
	// Throttler paces the post-navigation wait. Defaults to the standard
	// pacing.
	Throttler *throttle.Throttler
	// LoadingTimeout bounds the wait for loading indicators to disappear
	// before extraction proceeds anyway.
	LoadingTimeout time.Duration
	Logger         log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Session == nil {
		return fmt.Errorf("session is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.ListURL == "" {
		c.ListURL = c.BaseURL
	}
	if c.Throttler == nil {
		throttler, err := throttle.NewThrottler(throttle.DefaultConfig())
		if err != nil {
			return fmt.Errorf("could not create default throttler: %w", err)
		}
		c.Throttler = throttler
	}
	if c.LoadingTimeout == 0 {
		c.LoadingTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "extract.Service"})
	return nil
}

// Service extracts work items from the tracker's list page.
type Service struct {
	session        browser.Session
	resolver       *browser.Resolver
	baseURL        string
	listURL        string
	throttler      *throttle.Throttler
	loadingTimeout time.Duration
	logger         log.Logger
}

// NewService creates a new extraction service.
func NewService(config ServiceConfig) (*Service, error) {
	err := config.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	resolver, err := browser.NewResolver(browser.ResolverConfig{
		Session: config.Session,
		Logger:  config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create resolver: %w", err)
	}

	return &Service{
		session:        config.Session,
		resolver:       resolver,
		baseURL:        config.BaseURL,
		listURL:        config.ListURL,
		throttler:      config.Throttler,
		loadingTimeout: config.LoadingTimeout,
		logger:         config.Logger,
	}, nil
}

// Extract opens the list page and returns the work items present on it.
// Zero items is not an error, the page may legitimately be empty. Per-item
// extraction is best effort: optional fields that cannot be located stay
// absent, items missing their key are dropped.
func (s *Service) Extract(ctx context.Context) ([]model.WorkItem, error) {
	if err := s.ensureOnListPage(ctx); err != nil {
		return nil, err
	}

	gone := s.resolver.WaitGone(ctx, loadingIndicators, s.loadingTimeout, loadingPollInterval)
	if !gone {
		s.logger.Warningf("loading indicator still visible after %s, extracting anyway", s.loadingTimeout)
	}

	source, err := s.session.PageSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read page source: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("could not parse page: %w", err)
	}

	strategies := []struct {
		name string
		fn   func(doc *html.Node) []model.WorkItem
	}{
		{name: "table", fn: s.extractTable},
		{name: "board", fn: s.extractBoard},
		{name: "grid", fn: s.extractGrid},
	}

	for _, strategy := range strategies {
		items := strategy.fn(doc)
		if len(items) > 0 {
			s.logger.Infof("extracted %d items using %s layout", len(items), strategy.name)
			return items, nil
		}
		s.logger.Debugf("%s layout yielded no items", strategy.name)
	}

	return []model.WorkItem{}, nil
}

// ensureOnListPage navigates to the list page unless the session is already
// there. Previous items leave the browser parked on the last item's page.
func (s *Service) ensureOnListPage(ctx context.Context) error {
	current, err := s.session.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("could not read current URL: %w", err)
	}
	if current == s.listURL {
		return nil
	}

	s.logger.Debugf("navigating to list page %s", s.listURL)
	if err := s.session.Navigate(ctx, s.listURL); err != nil {
		return fmt.Errorf("could not open list page: %w", err)
	}

	return s.throttler.WaitAfterNavigation(ctx)
}

// rowSpec names where a layout keeps each item field.
type rowSpec struct {
	keyAttr      string
	keyClass     string
	titleClass   string
	versionClass string
}

// extractTable handles the tabular results list: one tr per issue, cells
// classed by field.
func (s *Service) extractTable(doc *html.Node) []model.WorkItem {
	rows := findAll(doc, func(n *html.Node) bool {
		return n.Data == "tr" && (attrValue(n, "data-issuekey") != "" || hasClass(n, "issuerow"))
	})

	return s.itemsFromRows(rows, rowSpec{
		keyAttr:      "data-issuekey",
		keyClass:     "issuekey",
		titleClass:   "summary",
		versionClass: "fixVersions",
	})
}

// extractBoard handles the card board: one card div per issue.
func (s *Service) extractBoard(doc *html.Node) []model.WorkItem {
	cards := findAll(doc, func(n *html.Node) bool {
		return hasClass(n, "board-card") || attrValue(n, "data-issue-key") != ""
	})

	return s.itemsFromRows(cards, rowSpec{
		keyAttr:      "data-issue-key",
		keyClass:     "card-key",
		titleClass:   "card-summary",
		versionClass: "card-version",
	})
}

// extractGrid handles the hierarchical grid view: nested rows, one per item
// regardless of depth.
func (s *Service) extractGrid(doc *html.Node) []model.WorkItem {
	rows := findAll(doc, func(n *html.Node) bool {
		return hasClass(n, "grid-row") || attrValue(n, "data-item-key") != ""
	})

	return s.itemsFromRows(rows, rowSpec{
		keyAttr:      "data-item-key",
		keyClass:     "grid-key",
		titleClass:   "grid-title",
		versionClass: "grid-release",
	})
}

func (s *Service) itemsFromRows(rows []*html.Node, spec rowSpec) []model.WorkItem {
	var items []model.WorkItem
	for _, row := range rows {
		item, ok := s.itemFromRow(row, spec)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items
}

func (s *Service) itemFromRow(row *html.Node, spec rowSpec) (model.WorkItem, bool) {
	key := attrValue(row, spec.keyAttr)
	if key == "" {
		if n := childByClass(row, spec.keyClass); n != nil {
			key = textContent(n)
		}
	}
	if key == "" {
		s.logger.Debugf("dropping row without item key")
		return model.WorkItem{}, false
	}

	item := model.WorkItem{Key: key}

	if n := childByClass(row, spec.titleClass); n != nil {
		item.Title = textContent(n)
	}
	if n := childByClass(row, spec.versionClass); n != nil {
		item.TargetVersionLabel = textContent(n)
	}
	if a := findFirst(row, func(n *html.Node) bool { return n.Data == "a" && attrValue(n, "href") != "" }); a != nil {
		item.URL = s.resolveURL(attrValue(a, "href"))
	}

	item.ExtraFields = s.extraFields(row, spec)

	return item, true
}

// extraFields opportunistically captures any extra per-item data the layout
// exposes: data-field annotated nodes and, on tables, classed cells.
func (s *Service) extraFields(row *html.Node, spec rowSpec) map[string]string {
	fields := map[string]string{}

	for _, n := range findAll(row, func(n *html.Node) bool { return attrValue(n, "data-field") != "" }) {
		if v := textContent(n); v != "" {
			fields[attrValue(n, "data-field")] = v
		}
	}

	for _, td := range findAll(row, func(n *html.Node) bool { return n.Data == "td" && attrValue(n, "class") != "" }) {
		class := strings.Fields(attrValue(td, "class"))[0]
		if class == spec.keyClass || class == spec.titleClass || class == spec.versionClass {
			continue
		}
		if v := textContent(td); v != "" {
			fields[class] = v
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (s *Service) resolveURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return href
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}
