package querybuilder

import "github.com/nimburion/querykit/pkg/observability/logger"

// Default values applied when the matching parameter is absent.
const (
	DefaultSort       = "-createdAt"
	DefaultPage       = 1
	DefaultLimit      = 10
	DefaultProjection = "-__v"
)

// Defaults holds the fallbacks used by Sort, Paginate and Fields.
// Zero fields keep the package defaults.
type Defaults struct {
	Sort       string
	Page       int
	Limit      int
	Projection string
}

func (d Defaults) withFallbacks() Defaults {
	if d.Sort == "" {
		d.Sort = DefaultSort
	}
	if d.Page <= 0 {
		d.Page = DefaultPage
	}
	if d.Limit <= 0 {
		d.Limit = DefaultLimit
	}
	if d.Projection == "" {
		d.Projection = DefaultProjection
	}
	return d
}

// Option configures a Builder.
type Option func(*options)

type options struct {
	log           logger.Logger
	defaults      Defaults
	literalSearch bool
}

// WithLogger sets the logger used for debug output. Defaults to a no-op logger.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithDefaults overrides the fallback sort, page, limit and projection.
func WithDefaults(d Defaults) Option {
	return func(o *options) {
		o.defaults = d.withFallbacks()
	}
}

// WithLiteralSearch escapes regular expression metacharacters in the search
// term so it is matched as plain text.
func WithLiteralSearch() Option {
	return func(o *options) {
		o.literalSearch = true
	}
}
