package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/firefox"

	"github.com/lexiqai/article-voice/internal/observability"
)

var (
	// ErrSessionClosed is returned after Close
	ErrSessionClosed = errors.New("browser session closed")

	// ErrElementNotFound is returned when a locator matches nothing
	ErrElementNotFound = errors.New("no such element")
)

// Page is the part of a WebDriver session the extractor drives
type Page interface {
	Get(url string) error
	FindElement(by, value string) (Element, error)
}

// Element is one located DOM node
type Element interface {
	FindElements(by, value string) ([]Element, error)
	Text() (string, error)
}

// SessionConfig describes how to open the remote browser session
type SessionConfig struct {
	URL             string
	Headless        bool
	PageLoadTimeout time.Duration
}

// Session is the single shared browser session. Only one caller drives it
// at a time; waiters queue on a one-slot semaphore.
type Session struct {
	page   Page
	quit   func() error
	status func() error
	sem    chan struct{}
	closed atomic.Bool
	mu     sync.Mutex
}

// NewSession wraps an already opened page; quit and status may be nil
func NewSession(page Page, quit func() error, status func() error) *Session {
	return &Session{
		page:   page,
		quit:   quit,
		status: status,
		sem:    make(chan struct{}, 1),
	}
}

// Connect opens a Firefox session on the WebDriver server at cfg.URL
func Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	caps := selenium.Capabilities{"browserName": "firefox"}
	var args []string
	if cfg.Headless {
		args = append(args, "-headless")
	}
	caps.AddFirefox(firefox.Capabilities{Args: args})

	wd, err := selenium.NewRemote(caps, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}

	if cfg.PageLoadTimeout > 0 {
		if err := wd.SetPageLoadTimeout(cfg.PageLoadTimeout); err != nil {
			wd.Quit()
			return nil, fmt.Errorf("failed to set page load timeout: %w", err)
		}
	}

	status := func() error {
		_, err := wd.Status()
		return err
	}
	return NewSession(seleniumPage{wd: wd}, wd.Quit, status), nil
}

// Acquire waits for exclusive use of the session. The returned release
// func must be called exactly once; extra calls are no-ops.
func (s *Session) Acquire(ctx context.Context) (Page, func(), error) {
	if s.closed.Load() {
		return nil, nil, ErrSessionClosed
	}

	start := time.Now()
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	observability.ObserveBrowserWait(time.Since(start))

	if s.closed.Load() {
		<-s.sem
		return nil, nil, ErrSessionClosed
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-s.sem })
	}
	return s.page, release, nil
}

// Do runs fn with exclusive use of the session. If ctx ends first Do returns
// ctx.Err() right away, but the session stays held until fn returns so two
// navigations never overlap.
func (s *Session) Do(ctx context.Context, fn func(Page) error) error {
	page, release, err := s.Acquire(ctx)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer release()
		done <- fn(page)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Healthy reports whether the WebDriver server still answers
func (s *Session) Healthy(ctx context.Context) (bool, error) {
	if s.closed.Load() {
		return false, ErrSessionClosed
	}
	if s.status == nil {
		return true, nil
	}
	if err := s.status(); err != nil {
		return false, err
	}
	return true, nil
}

// Close waits for the current holder, then ends the browser session
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		logger := observability.GetLogger()
		logger.Warn().Msg("Closing browser session while a request still holds it")
	}

	s.closed.Store(true)
	if s.quit == nil {
		return nil
	}
	return s.quit()
}

type seleniumPage struct {
	wd selenium.WebDriver
}

func (p seleniumPage) Get(url string) error {
	return p.wd.Get(url)
}

func (p seleniumPage) FindElement(by, value string) (Element, error) {
	el, err := p.wd.FindElement(by, value)
	if err != nil {
		return nil, mapFindError(err)
	}
	return seleniumElement{el: el}, nil
}

type seleniumElement struct {
	el selenium.WebElement
}

func (e seleniumElement) FindElements(by, value string) ([]Element, error) {
	found, err := e.el.FindElements(by, value)
	if err != nil {
		return nil, mapFindError(err)
	}
	out := make([]Element, len(found))
	for i, el := range found {
		out[i] = seleniumElement{el: el}
	}
	return out, nil
}

func (e seleniumElement) Text() (string, error) {
	return e.el.Text()
}

// legacyNoSuchElement is the JSON wire protocol status for a failed lookup
const legacyNoSuchElement = 7

func mapFindError(err error) error {
	var selErr *selenium.Error
	if errors.As(err, &selErr) && (selErr.Err == "no such element" || selErr.LegacyCode == legacyNoSuchElement) {
		return fmt.Errorf("%w: %v", ErrElementNotFound, err)
	}
	return err
}
