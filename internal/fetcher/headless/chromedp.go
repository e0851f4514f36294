// Package headless renders pages in a headless Chrome session via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ErrTimeout reports that the document body never became ready.
var ErrTimeout = errors.New("render timeout")

const (
	defaultWaitTimeout = 10 * time.Second
	defaultScrollPause = 2 * time.Second
	settleTimeout      = 15 * time.Second
	scrollScript       = `window.scrollTo(0, document.body.scrollHeight); true`
)

// Config controls the behavior of the renderer.
type Config struct {
	MaxParallel int
	UserAgent   string
	Headers     http.Header
	// ScrollPause is how long to wait after scrolling for lazy content.
	ScrollPause time.Duration
	// WaitTimeout is used when Render is called with a zero timeout.
	WaitTimeout time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
	NoSandbox bool
}

// Renderer loads pages in a fresh browser tab per call.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a Renderer backed by chromedp. The browser process
// starts lazily on first use.
func NewChromedp(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.ScrollPause < 0 {
		return nil, fmt.Errorf("scroll pause must be >= 0")
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Close shuts down the browser process.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates to rawURL, waits up to timeout for the body, scrolls to
// the bottom, pauses, and returns the serialized DOM. The tab is closed on
// every path.
func (r *Renderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	sessionCtx, cancelSession := chromedp.NewContext(r.allocator)
	defer cancelSession()
	stop := context.AfterFunc(ctx, cancelSession)
	defer stop()

	if err := chromedp.Run(sessionCtx); err != nil {
		return "", fmt.Errorf("start browser session: %w", err)
	}

	if timeout <= 0 {
		timeout = r.waitTimeout()
	}
	waitCtx, cancelWait := context.WithTimeout(sessionCtx, timeout)
	defer cancelWait()
	err := chromedp.Run(waitCtx,
		r.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("render canceled: %w", ctx.Err())
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: body not ready after %s", ErrTimeout, timeout)
		}
		return "", fmt.Errorf("chromedp navigate: %w", err)
	}

	pause := r.scrollPause()
	settleCtx, cancelSettle := context.WithTimeout(sessionCtx, pause+settleTimeout)
	defer cancelSettle()
	var (
		html     string
		scrolled bool
	)
	err = chromedp.Run(settleCtx,
		chromedp.Evaluate(scrollScript, &scrolled),
		chromedp.Sleep(pause),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return "", fmt.Errorf("chromedp capture: %w", err)
	}
	return html, nil
}

func (r *Renderer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(r.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(r.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func (r *Renderer) waitTimeout() time.Duration {
	if r.cfg.WaitTimeout > 0 {
		return r.cfg.WaitTimeout
	}
	return defaultWaitTimeout
}

func (r *Renderer) scrollPause() time.Duration {
	if r.cfg.ScrollPause > 0 {
		return r.cfg.ScrollPause
	}
	return defaultScrollPause
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
