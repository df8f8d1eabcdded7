package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"github.com/google/uuid"

	"github.com/mohammad-safakhou/webscout/config"
	"github.com/mohammad-safakhou/webscout/internal/session"
)

// BrowserActuator drives a headless Chrome instance via chromedp. The
// browser context is created lazily on first use, torn down by Release, and
// relaunched on the next capability call so a paused session can resume.
type BrowserActuator struct {
	cfg config.BrowserConfig

	mu           sync.Mutex
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserStop  context.CancelFunc
	released     bool
	currentURL   string
	currentTitle string
	shotDir      string
}

// NewBrowserActuator builds an actuator for one session. Screenshots are
// written under a per-actuator temp directory.
func NewBrowserActuator(cfg config.BrowserConfig) *BrowserActuator {
	return &BrowserActuator{cfg: cfg}
}

func (a *BrowserActuator) ensureBrowser(ctx context.Context) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.browserCtx != nil {
		return a.browserCtx, nil
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.cfg.Headless),
		chromedp.UserAgent(a.cfg.UserAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, cancelBrowser := chromedp.NewContext(actx)
	a.allocCancel = cancelAlloc
	a.browserCtx = bctx
	a.browserStop = cancelBrowser
	a.released = false
	return bctx, nil
}

func (a *BrowserActuator) Navigate(ctx context.Context, rawURL string) (NavigationResult, error) {
	if strings.TrimSpace(rawURL) == "" {
		return NavigationResult{Success: false, Error: "invalid url"}, nil
	}
	bctx, err := a.ensureBrowser(ctx)
	if err != nil {
		return NavigationResult{Success: false, Error: err.Error()}, nil
	}
	runCtx, cancel := context.WithTimeout(bctx, a.timeout())
	defer cancel()

	var html, title string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return NavigationResult{Success: false, URL: rawURL, Error: err.Error()}, nil
	}

	text := ""
	if article, rerr := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL)); rerr == nil {
		text = strings.TrimSpace(article.TextContent)
		if title == "" {
			title = strings.TrimSpace(article.Title)
		}
	}
	if max := a.cfg.MaxBodyChars; max > 0 && len(text) > max {
		text = text[:max]
	}

	a.mu.Lock()
	a.currentURL = rawURL
	a.currentTitle = title
	a.mu.Unlock()

	return NavigationResult{Success: true, URL: rawURL, Title: title, Text: text}, nil
}

func (a *BrowserActuator) Query(ctx context.Context, selector string) (QueryResult, error) {
	bctx, err := a.ensureBrowser(ctx)
	if err != nil {
		return QueryResult{Success: false, Selector: selector, Error: err.Error()}, nil
	}
	runCtx, cancel := context.WithTimeout(bctx, a.timeout())
	defer cancel()

	js := fmt.Sprintf(`JSON.stringify(Array.from(document.querySelectorAll(%q)).slice(0, 50).map(el => ({tag: el.tagName.toLowerCase(), text: (el.innerText || "").slice(0, 300)})))`, selector)
	var raw string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &raw)); err != nil {
		return QueryResult{Success: false, Selector: selector, Error: err.Error()}, nil
	}
	var elements []Element
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return QueryResult{Success: false, Selector: selector, Error: "unparseable query result"}, nil
	}
	return QueryResult{Success: true, Selector: selector, Elements: elements}, nil
}

func (a *BrowserActuator) Screenshot(ctx context.Context) (*session.Screenshot, error) {
	bctx, err := a.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(bctx, a.timeout())
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}

	a.mu.Lock()
	if a.shotDir == "" {
		dir, derr := os.MkdirTemp("", "webscout-shots-")
		if derr != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("create screenshot dir: %w", derr)
		}
		a.shotDir = dir
	}
	dir := a.shotDir
	currentURL := a.currentURL
	currentTitle := a.currentTitle
	a.mu.Unlock()

	path := filepath.Join(dir, uuid.NewString()+".png")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return nil, fmt.Errorf("write screenshot: %w", err)
	}
	return &session.Screenshot{
		URL:         currentURL,
		Title:       currentTitle,
		StoragePath: path,
	}, nil
}

func (a *BrowserActuator) Extract(ctx context.Context, selectors []string) (ExtractionResult, error) {
	bctx, err := a.ensureBrowser(ctx)
	if err != nil {
		return ExtractionResult{Success: false, Error: err.Error()}, nil
	}
	runCtx, cancel := context.WithTimeout(bctx, a.timeout())
	defer cancel()

	data := make(map[string][]string, len(selectors))
	for _, sel := range selectors {
		js := fmt.Sprintf(`JSON.stringify(Array.from(document.querySelectorAll(%q)).slice(0, 100).map(el => (el.innerText || "").trim()).filter(t => t.length > 0))`, sel)
		var raw string
		if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &raw)); err != nil {
			return ExtractionResult{Success: false, Data: data, Error: err.Error()}, nil
		}
		var texts []string
		if err := json.Unmarshal([]byte(raw), &texts); err != nil {
			continue
		}
		data[sel] = texts
	}
	return ExtractionResult{Success: true, Data: data}, nil
}

// Release closes the browser and allocator. Safe to call more than once; the
// next capability call launches a fresh browser.
func (a *BrowserActuator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	if a.browserStop != nil {
		a.browserStop()
		a.browserStop = nil
	}
	if a.allocCancel != nil {
		a.allocCancel()
		a.allocCancel = nil
	}
	a.browserCtx = nil
}

func (a *BrowserActuator) timeout() time.Duration {
	if a.cfg.NavigationTimeout > 0 {
		return a.cfg.NavigationTimeout
	}
	return 30 * time.Second
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
