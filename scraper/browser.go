package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mkt_tracker/config"
)

const (
	resultsNavTimeout    = 120 * time.Second
	detailNavTimeout     = 45 * time.Second
	loginNavTimeout      = 120 * time.Second
	desktopReadyTimeout  = 15 * time.Second
	mobileReadyTimeout   = 10 * time.Second
	defaultActionTimeout = 30 * time.Second
	consentClickTimeout  = 2 * time.Second

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// StartOptions controls how the browser session is established.
type StartOptions struct {
	Headless         bool
	StorageStatePath string
	// Confirm blocks until the operator has logged in. Without it a missing
	// session snapshot just means an anonymous session.
	Confirm Confirmer
	// ForceLogin runs the interactive login even when a snapshot exists.
	ForceLogin bool
}

// PageController owns one browser page and the persisted session snapshot.
type PageController struct {
	site    *config.SiteProfile
	cfg     config.BrowserConfig
	logger  *zap.Logger
	limiter *rate.Limiter
	sleep   Sleeper

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    pageHandle
	newPage func() (pageHandle, error)
}

func NewPageController(site *config.SiteProfile, cfg config.BrowserConfig, logger *zap.Logger) *PageController {
	perMinute := cfg.NavigationsPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	return &PageController{
		site:    site,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 2),
		sleep:   sleepCtx,
	}
}

// Start launches Chromium and opens the working page, loading the session
// snapshot when one exists.
func (c *PageController) Start(ctx context.Context, opts StartOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pw != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	c.pw = pw

	args := []string{"--disable-blink-features=AutomationControlled"}
	if opts.Headless {
		args = append(args, "--disable-dev-shm-usage", "--no-sandbox", "--disable-gpu")
	}
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
		SlowMo:   playwright.Float(float64(c.cfg.SlowMoMS)),
	}
	if c.cfg.ProxyURL != "" {
		launch.Proxy = &playwright.Proxy{Server: c.cfg.ProxyURL}
	}

	c.browser, err = pw.Chromium.Launch(launch)
	if err != nil {
		c.stopLocked()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	userAgent := c.cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	width, height := c.cfg.Viewport[0], c.cfg.Viewport[1]
	if width <= 0 || height <= 0 {
		width, height = 1280, 900
	}
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: width, Height: height},
		UserAgent: playwright.String(userAgent),
		Locale:    playwright.String("en-US"),
	}

	hasSnapshot := opts.StorageStatePath != "" && fileExists(opts.StorageStatePath)
	if hasSnapshot && !opts.ForceLogin {
		ctxOpts.StorageStatePath = playwright.String(opts.StorageStatePath)
		c.logger.Info("Loaded session snapshot", zap.String("path", opts.StorageStatePath))
	}

	c.context, err = c.browser.NewContext(ctxOpts)
	if err != nil {
		c.stopLocked()
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	c.context.SetDefaultTimeout(ms(defaultActionTimeout))
	c.context.SetDefaultNavigationTimeout(ms(detailNavTimeout))

	c.newPage = func() (pageHandle, error) {
		page, err := c.context.NewPage()
		if err != nil {
			return nil, err
		}
		return playwrightPage{page: page}, nil
	}
	c.page, err = c.newPage()
	if err != nil {
		c.stopLocked()
		return fmt.Errorf("failed to create page: %w", err)
	}

	if opts.Confirm != nil && opts.StorageStatePath != "" && (!hasSnapshot || opts.ForceLogin) {
		if err := c.bootstrapSession(ctx, opts.StorageStatePath, opts.Confirm); err != nil {
			c.stopLocked()
			return err
		}
	}
	return nil
}

// bootstrapSession lets the operator log in by hand and persists the
// resulting storage state.
func (c *PageController) bootstrapSession(ctx context.Context, path string, confirm Confirmer) error {
	c.logger.Info("No session snapshot, waiting for manual login", zap.String("login_url", c.site.LoginURL))

	if err := c.page.Goto(c.site.LoginURL, loginNavTimeout); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	if err := confirm.Confirm(ctx, "Log in in the opened browser window, then press Enter here to continue..."); err != nil {
		return fmt.Errorf("login confirmation: %w", err)
	}

	if _, err := c.context.StorageState(path); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	c.logger.Info("Saved session snapshot", zap.String("path", path))
	return nil
}

// Close releases the page, context, browser and driver.
func (c *PageController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *PageController) stopLocked() error {
	var errs []error
	if c.page != nil && !c.page.IsClosed() {
		errs = append(errs, c.page.Close())
	}
	if c.context != nil {
		errs = append(errs, c.context.Close())
	}
	if c.browser != nil {
		errs = append(errs, c.browser.Close())
	}
	if c.pw != nil {
		errs = append(errs, c.pw.Stop())
	}
	c.page, c.context, c.browser, c.pw = nil, nil, nil, nil
	c.newPage = nil
	return errors.Join(errs...)
}

// Recreate replaces the working page with a fresh one in the same context.
func (c *PageController) Recreate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recreateLocked()
}

func (c *PageController) recreateLocked() error {
	if c.newPage == nil {
		return errors.New("browser not started")
	}
	if c.page != nil && !c.page.IsClosed() {
		c.page.Close()
	}
	page, err := c.newPage()
	if err != nil {
		return fmt.Errorf("%w: new page: %w", ErrPageCrashed, err)
	}
	c.page = page
	c.logger.Warn("Recreated browser page")
	return nil
}

// navigate paces, then loads url. A failed navigation recreates the page if
// it was closed and is re-issued once.
func (c *PageController) navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return errors.New("browser not started")
	}

	err := c.page.Goto(url, timeout)
	if err == nil {
		return nil
	}

	c.logger.Warn("Navigation failed, retrying once", zap.String("url", url), zap.Error(err))
	if c.page.IsClosed() {
		if err := c.recreateLocked(); err != nil {
			return err
		}
	}
	if err := c.page.Goto(url, timeout); err != nil {
		if c.page.IsClosed() {
			return fmt.Errorf("%w: goto %s: %w", ErrPageCrashed, url, err)
		}
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

// Ready dismisses a consent dialog if one shows and waits for a visible
// listing anchor. It never fails; false means not ready.
func (c *PageController) Ready(ctx context.Context, timeout time.Duration) bool {
	c.dismissConsent(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return false
	}
	return c.page.WaitVisible(fmt.Sprintf("a[href*='%s']", c.site.ItemPathMarker), timeout) == nil
}

func (c *PageController) dismissConsent(ctx context.Context) {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()
	if page == nil {
		return
	}

	for _, sel := range c.site.ConsentSelectors {
		clicked, err := page.ClickIfVisible(sel, consentClickTimeout)
		if err != nil {
			c.logger.Debug("Consent click failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if !clicked {
			continue
		}
		c.logger.Debug("Dismissed consent dialog", zap.String("selector", sel))
		c.sleep(ctx, jitter(500*time.Millisecond, time.Second))
		return
	}
}

// OpenResults loads a results URL and reports whether listings became
// visible, falling back to the mobile host once.
func (c *PageController) OpenResults(ctx context.Context, url string) (bool, error) {
	if err := c.navigate(ctx, url, resultsNavTimeout); err != nil {
		return false, err
	}
	if c.Ready(ctx, desktopReadyTimeout) {
		return true, nil
	}

	mobile := MobileURL(url)
	if mobile == url {
		return false, nil
	}
	c.logger.Warn("Results not visible, trying mobile host", zap.String("url", mobile))

	if err := c.navigate(ctx, mobile, resultsNavTimeout); err != nil {
		c.logger.Warn("Mobile navigation failed", zap.String("url", mobile), zap.Error(err))
		return false, nil
	}
	if err := c.sleep(ctx, jitter(1200*time.Millisecond, 2200*time.Millisecond)); err != nil {
		return false, err
	}
	return c.Ready(ctx, mobileReadyTimeout), nil
}

// OpenDetail loads a listing page and waits for the detail marker.
func (c *PageController) OpenDetail(ctx context.Context, url string, timeout time.Duration) (bool, error) {
	if err := c.navigate(ctx, url, detailNavTimeout); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page.WaitVisible(c.site.DetailMarker, timeout) == nil, nil
}

func (c *PageController) WaitSettled(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil || c.page.IsClosed() {
		return ErrPageCrashed
	}
	return c.page.WaitForNetworkIdle(timeout)
}

// Content snapshots the rendered DOM.
func (c *PageController) Content() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil || c.page.IsClosed() {
		return "", ErrPageCrashed
	}
	return c.page.Content()
}

func (c *PageController) ScrollBy(ctx context.Context, pixels int) error {
	return c.evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, pixels))
}

func (c *PageController) ScrollToEnd(ctx context.Context) error {
	return c.evaluate(`window.scrollBy(0, document.body.scrollHeight)`)
}

func (c *PageController) evaluate(script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil || c.page.IsClosed() {
		return ErrPageCrashed
	}
	return c.page.Evaluate(script)
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
