package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	collyfetcher "github.com/JakeFAU/contactfinder/internal/fetcher/colly"
	"github.com/JakeFAU/contactfinder/internal/fetcher/headless"
)

// PageGetter performs a single HTTP GET.
type PageGetter interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (collyfetcher.Page, error)
}

// Renderer returns the serialized DOM of a page after scripts have run.
type Renderer interface {
	Render(ctx context.Context, rawURL string, timeout time.Duration) (string, error)
}

// StaticFetcher scans the HTML served to a plain GET.
type StaticFetcher struct {
	pages PageGetter
}

// NewStaticFetcher builds a StaticFetcher.
func NewStaticFetcher(pages PageGetter) *StaticFetcher {
	return &StaticFetcher{pages: pages}
}

// Strategy implements Source.
func (*StaticFetcher) Strategy() Strategy { return StrategyStatic }

// Fetch implements Source.
func (s *StaticFetcher) Fetch(ctx context.Context, target string, timeout time.Duration) Outcome {
	page, err := s.pages.Fetch(ctx, target, timeout)
	if err != nil {
		return failed(KindFetchFailure, fmt.Errorf("%w: %w", ErrFetchFailure, err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return failed(KindFetchFailure, fmt.Errorf("%w: parse html: %w", ErrFetchFailure, err))
	}
	return Outcome{Candidates: tag(scanDocument(doc), StrategyStatic), Body: page.Body}
}

// RenderedFetcher scans the DOM produced by a headless browser, including
// contact and email widgets.
type RenderedFetcher struct {
	renderer Renderer
}

// NewRenderedFetcher builds a RenderedFetcher.
func NewRenderedFetcher(renderer Renderer) *RenderedFetcher {
	return &RenderedFetcher{renderer: renderer}
}

// Strategy implements Source.
func (*RenderedFetcher) Strategy() Strategy { return StrategyRendered }

// Fetch implements Source.
func (r *RenderedFetcher) Fetch(ctx context.Context, target string, timeout time.Duration) Outcome {
	rendered, err := r.renderer.Render(ctx, target, timeout)
	if err != nil {
		if errors.Is(err, headless.ErrUnavailable) {
			return failed(KindNotConfigured, err)
		}
		if errors.Is(err, headless.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return failed(KindRenderTimeout, fmt.Errorf("%w: %w", ErrRenderTimeout, err))
		}
		return failed(KindFetchFailure, fmt.Errorf("%w: %w", ErrFetchFailure, err))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return failed(KindFetchFailure, fmt.Errorf("%w: parse rendered html: %w", ErrFetchFailure, err))
	}
	raw := scanDocument(doc)
	raw = append(raw, scanWidgets(doc)...)
	return Outcome{Candidates: tag(raw, StrategyRendered)}
}

// DefaultSitemapPaths are tried in order.
func DefaultSitemapPaths() []string {
	return []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap.txt"}
}

// SitemapFetcher scans the first conventional sitemap that answers 200.
type SitemapFetcher struct {
	pages PageGetter
	paths []string
}

// NewSitemapFetcher builds a SitemapFetcher. Empty paths use DefaultSitemapPaths.
func NewSitemapFetcher(pages PageGetter, paths ...string) *SitemapFetcher {
	if len(paths) == 0 {
		paths = DefaultSitemapPaths()
	}
	return &SitemapFetcher{pages: pages, paths: paths}
}

// Strategy implements Source.
func (*SitemapFetcher) Strategy() Strategy { return StrategySitemap }

// Fetch implements Source. timeout applies to each path tried.
func (s *SitemapFetcher) Fetch(ctx context.Context, target string, timeout time.Duration) Outcome {
	base, err := url.Parse(target)
	if err != nil {
		return failed(KindSitemapUnavailable, fmt.Errorf("%w: %w", ErrSitemapUnavailable, err))
	}
	var misses []string
	for _, p := range s.paths {
		if ctx.Err() != nil {
			misses = append(misses, ctx.Err().Error())
			break
		}
		candidate := base.ResolveReference(&url.URL{Path: p})
		page, err := s.pages.Fetch(ctx, candidate.String(), timeout)
		if err != nil {
			misses = append(misses, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		if page.StatusCode != http.StatusOK {
			misses = append(misses, fmt.Sprintf("%s: HTTP %d", p, page.StatusCode))
			continue
		}
		return Outcome{Candidates: tag(scanText(string(page.Body)), StrategySitemap)}
	}
	return failed(KindSitemapUnavailable, fmt.Errorf("%w (%s)", ErrSitemapUnavailable, strings.Join(misses, "; ")))
}
