package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"ohnitiel/upsql/dberr"
)

// RequestIDHeader carries the correlation id of an API call in both
// directions.
const RequestIDHeader = "X-Request-Id"

// AuthFiller decorates outgoing requests with credentials.
type AuthFiller interface {
	Fill(req *http.Request) error
}

type RequesterOption func(*Requester)

func WithHTTPClient(c *http.Client) RequesterOption {
	return func(r *Requester) {
		if c != nil {
			r.http = c
		}
	}
}

func WithRequesterLogger(logger *slog.Logger) RequesterOption {
	return func(r *Requester) {
		if logger != nil {
			r.log = logger
		}
	}
}

// Requester issues JSON calls against the service API and maps every
// failure onto a dberr kind.
type Requester struct {
	baseURL *url.URL
	auth    AuthFiller
	http    *http.Client
	log     *slog.Logger
}

func NewRequester(baseURL string, auth AuthFiller, opts ...RequesterOption) (*Requester, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, dberr.Wrap(dberr.InvalidOption, "invalid API URL "+baseURL, err)
	}

	r := &Requester{
		baseURL: u,
		auth:    auth,
		http:    http.DefaultClient,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Requester) BaseURL() *url.URL {
	u := *r.baseURL
	return &u
}

func (r *Requester) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return r.Do(ctx, http.MethodGet, path, params, nil)
}

func (r *Requester) Post(ctx context.Context, path string, params url.Values, body any) (*Response, error) {
	return r.Do(ctx, http.MethodPost, path, params, body)
}

// Do performs one call. path is either relative to the base URL or an
// absolute URL handed out by the service.
func (r *Requester) Do(ctx context.Context, method, path string, params url.Values, body any) (*Response, error) {
	target, err := r.resolve(path, params)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "invalid request location "+path, err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, "encoding request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "building request", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.auth != nil {
		if err := r.auth.Fill(req); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	res, err := r.http.Do(req)
	if err != nil {
		r.log.DebugContext(ctx, "API call failed", "method", method, "url", target, "error", err)
		reqErr := dberr.NewRequest(target, err)
		reqErr.RequestID = requestID
		return nil, reqErr
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		reqErr := dberr.NewRequest(target, err)
		reqErr.RequestID = requestID
		return nil, reqErr
	}

	resp := &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       raw,
		URL:        target,
		requestID:  requestID,
	}
	if id := res.Header.Get(RequestIDHeader); id != "" {
		resp.requestID = id
	}

	r.log.DebugContext(ctx, "API call",
		"method", method,
		"url", target,
		"status", res.StatusCode,
		"request_id", resp.requestID,
		"elapsed", time.Since(start),
	)

	if err := resp.check(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Requester) resolve(path string, params url.Values) (string, error) {
	var u *url.URL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return "", err
		}
		u = parsed
	} else {
		p, rawQuery, _ := strings.Cut(path, "?")
		u = r.baseURL.JoinPath(p)
		u.RawQuery = rawQuery
	}

	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
