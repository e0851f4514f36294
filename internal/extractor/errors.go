package extractor

import (
	"errors"

	"github.com/JakeFAU/contactfinder/internal/urlnorm"
)

var (
	// ErrInvalidURL aborts a request whose target cannot be normalized.
	ErrInvalidURL = urlnorm.ErrInvalidURL
	// ErrDisallowedTarget aborts a request aimed at a loopback or private host.
	ErrDisallowedTarget = urlnorm.ErrDisallowedTarget
	// ErrAllStrategiesFailed accompanies an empty Result when no enabled
	// strategy managed to search the page.
	ErrAllStrategiesFailed = errors.New("all strategies failed")
	// ErrFetchFailure wraps network and HTTP failures of a page strategy.
	ErrFetchFailure = errors.New("fetch failed")
	// ErrRenderTimeout wraps a browser render whose body never became ready.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrSitemapUnavailable is reported when no conventional sitemap answered 200.
	ErrSitemapUnavailable = errors.New("no sitemap found")
	// ErrInvalidConfig is returned for an unusable Config.
	ErrInvalidConfig = errors.New("invalid extraction config")
)
