package scraper

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// pageHandle is the slice of a browser tab the page controller uses.
type pageHandle interface {
	Goto(url string, timeout time.Duration) error
	IsClosed() bool
	Close() error
	Content() (string, error)
	Evaluate(script string) error
	WaitForNetworkIdle(timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	// ClickIfVisible clicks the first match of selector when it is shown and
	// reports whether it clicked.
	ClickIfVisible(selector string, timeout time.Duration) (bool, error)
}

type playwrightPage struct {
	page playwright.Page
}

func (p playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(ms(timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p playwrightPage) IsClosed() bool { return p.page.IsClosed() }

func (p playwrightPage) Close() error { return p.page.Close() }

func (p playwrightPage) Content() (string, error) { return p.page.Content() }

func (p playwrightPage) Evaluate(script string) error {
	_, err := p.page.Evaluate(script)
	return err
}

func (p playwrightPage) WaitForNetworkIdle(timeout time.Duration) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(ms(timeout)),
	})
}

func (p playwrightPage) WaitVisible(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(ms(timeout)),
	})
}

func (p playwrightPage) ClickIfVisible(selector string, timeout time.Duration) (bool, error) {
	btn := p.page.Locator(selector).First()
	if visible, _ := btn.IsVisible(); !visible {
		return false, nil
	}
	if err := btn.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(ms(timeout))}); err != nil {
		return false, err
	}
	return true, nil
}
