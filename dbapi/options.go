package dbapi

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/query"
)

const DefaultTimeout = "60s"

type options struct {
	timeout      string
	pollInterval time.Duration
	log          *slog.Logger
	observer     query.Observer
	httpClient   *http.Client
	discover     bool
	pollers      query.PollerBuilder
	submitter    query.Submitter
}

type Option func(*options)

// WithTimeout sets how long a query may take to produce each page. It
// accepts Go durations ("90s", "1m30s") and bare seconds ("45", "2.5").
func WithTimeout(timeout string) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.log = logger
	}
}

func WithObserver(observer query.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithDiscovery resolves the regional API address through the given global
// endpoint before connecting.
func WithDiscovery(enabled bool) Option {
	return func(o *options) {
		o.discover = enabled
	}
}

func WithPollerBuilder(builder query.PollerBuilder) Option {
	return func(o *options) {
		o.pollers = builder
	}
}

// WithSubmitter bypasses the REST client entirely.
func WithSubmitter(s query.Submitter) Option {
	return func(o *options) {
		o.submitter = s
	}
}

// ParseTimeout reads a Go duration or a bare number of seconds.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, dberr.Wrap(dberr.InvalidOption, fmt.Sprintf("invalid duration %q", s), err)
	}
	nanos := secs * float64(time.Second)
	if nanos >= math.MaxInt64 || nanos <= math.MinInt64 {
		return 0, dberr.New(dberr.InvalidOption, fmt.Sprintf("duration %q out of range", s))
	}
	return time.Duration(nanos), nil
}
