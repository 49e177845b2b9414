// Package browser defines the ports used to drive a live web page and the
// ordered-fallback element resolver the automation relies on. Concrete
// implementations live in the webdriver (real) and fake (tests)
// subpackages.
package browser

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound is returned when no element satisfies a locator.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoSession is returned when the browser session is gone.
	ErrNoSession = errors.New("no active browser session")
)

// Strategy is a W3C WebDriver locator strategy.
type Strategy string

const (
	StrategyCSS             Strategy = "css selector"
	StrategyXPath           Strategy = "xpath"
	StrategyLinkText        Strategy = "link text"
	StrategyPartialLinkText Strategy = "partial link text"
	StrategyTagName         Strategy = "tag name"
)

// Locator selects elements on a page using one strategy.
type Locator struct {
	Strategy Strategy
	Value    string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%q", l.Strategy, l.Value)
}

// CSS returns a css selector locator.
func CSS(value string) Locator { return Locator{Strategy: StrategyCSS, Value: value} }

// XPath returns an xpath locator.
func XPath(value string) Locator { return Locator{Strategy: StrategyXPath, Value: value} }

// LinkText returns an exact link text locator.
func LinkText(value string) Locator { return Locator{Strategy: StrategyLinkText, Value: value} }

// PartialLinkText returns a partial link text locator.
func PartialLinkText(value string) Locator {
	return Locator{Strategy: StrategyPartialLinkText, Value: value}
}

// TagName returns a tag name locator.
func TagName(value string) Locator { return Locator{Strategy: StrategyTagName, Value: value} }

// Session is a live browser page being driven by the automation.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	Find(ctx context.Context, locator Locator) (Element, error)
	ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error)
	Close(ctx context.Context) error
}

// Element is a handle to an element located on the current page. Handles are
// only valid while the page that produced them stays loaded.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Displayed(ctx context.Context) (bool, error)
}
