package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/query"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRequester(t *testing.T, srv *httptest.Server, token string) *Requester {
	t.Helper()

	r, err := NewRequester(srv.URL+"/api", NewTokenAuthFiller(token),
		WithHTTPClient(srv.Client()), WithRequesterLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRequester_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		kind   dberr.Kind
		text   string
	}{
		{"unauthorized", 401, `{"message":"expired"}`, dberr.Auth, "Authentication error, please run 'login' command to create a valid token"},
		{"forbidden", 403, `{"message":"bad token"}`, dberr.Auth, "Authentication error, please run 'login' command to create a valid token"},
		{"syntax", 400, `{"message":"unexpected token"}`, dberr.API, "Syntax Error : unexpected token [request_id=srv-1]"},
		{"not found", 404, `{"detailMessage":"no such query"}`, dberr.API, "API Error : no such query [request_id=srv-1]"},
		{"server", 503, `"try later"`, dberr.Internal, "Internal Error : try later [request_id=srv-1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(RequestIDHeader, "srv-1")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestRequester(t, srv, "tok").Get(context.Background(), "/anything", nil)
			if kind, _ := dberr.KindOf(err); kind != tt.kind {
				t.Fatalf("want kind %v, got %v (%v)", tt.kind, kind, err)
			}
			if err.Error() != tt.text {
				t.Fatalf("want %q got %q", tt.text, err.Error())
			}
		})
	}
}

func TestRequester_SendsHeadersAndBody(t *testing.T) {
	t.Parallel()

	var gotAuth, gotID, gotPath string
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get(RequestIDHeader)
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, 200, map[string]any{"ok": true})
	}))
	defer srv.Close()

	resp, err := newTestRequester(t, srv, "tok").Post(context.Background(), "/query", nil, submitRequest{SQL: "SELECT 1", Async: true})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if gotAuth != "tok" {
		t.Fatalf("Authorization header: %q", gotAuth)
	}
	if gotPath != "/api/query" {
		t.Fatalf("path: %q", gotPath)
	}
	if got.SQL != "SELECT 1" || !got.Async {
		t.Fatalf("body: %+v", got)
	}
	if gotID == "" || resp.RequestID() != gotID {
		t.Fatalf("request id should fall back to the sent one: sent %q, got %q", gotID, resp.RequestID())
	}
}

func TestRequester_NetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	r, err := NewRequester(url, NewTokenAuthFiller("tok"), WithRequesterLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}

	_, err = r.Get(context.Background(), "/query", nil)
	if !errors.Is(err, dberr.Request) {
		t.Fatalf("want request fault, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Failed to reach "+url) {
		t.Fatalf("unexpected rendering %q", err.Error())
	}
}

func TestNewRequester_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRequester("not a url", nil)
	if !errors.Is(err, dberr.InvalidOption) {
		t.Fatalf("want invalid option, got %v", err)
	}
}

func TestResponse_Get(t *testing.T) {
	t.Parallel()

	resp := &Response{StatusCode: 200, Body: []byte(`{"dnsInfo": {"name": "api.example.com"}}`), requestID: "r1"}

	name, err := resp.GetString("dnsInfo.name")
	if err != nil || name != "api.example.com" {
		t.Fatalf("GetString: %q, %v", name, err)
	}

	_, err = resp.Get("dnsInfo.port")
	if !errors.Is(err, dberr.PayloadPathKey) {
		t.Fatalf("want payload path fault, got %v", err)
	}
	want := `Api Error [request_id=r1]: failed to find dnsInfo.port in response payload {"dnsInfo":{"name":"api.example.com"}}`
	if err.Error() != want {
		t.Fatalf("want %q got %q", want, err.Error())
	}

	bad := &Response{StatusCode: 200, Body: []byte(`{`)}
	if _, err := bad.Payload(); !errors.Is(err, dberr.Payload) {
		t.Fatalf("want payload fault, got %v", err)
	}
}

func TestTokenAuthFiller_ExpiredJWT(t *testing.T) {
	t.Parallel()

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := expired.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 200, map[string]any{})
	}))
	defer srv.Close()

	_, err = newTestRequester(t, srv, signed).Get(context.Background(), "/query", nil)
	if !errors.Is(err, dberr.Auth) {
		t.Fatalf("want auth fault, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("expired token must not reach the service")
	}
}

func TestTokenAuthFiller_OpaqueToken(t *testing.T) {
	t.Parallel()

	if tokenExpired("opaque-token", time.Now()) {
		t.Fatal("opaque tokens are never considered expired")
	}
}

func TestGetBaseURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/environments/local-api" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") == "no-dns" {
			writeJSON(w, 200, map[string]any{"dnsInfo": map[string]any{}})
			return
		}
		writeJSON(w, 200, map[string]any{"dnsInfo": map[string]any{"name": "eu.api.example.com"}})
	}))
	defer srv.Close()

	got, err := GetBaseURL(context.Background(), srv.URL, "tok", WithHTTPClient(srv.Client()), WithRequesterLogger(quietLogger()))
	if err != nil {
		t.Fatalf("GetBaseURL: %v", err)
	}
	if got != "https://eu.api.example.com" {
		t.Fatalf("unexpected base url %q", got)
	}

	_, err = GetBaseURL(context.Background(), srv.URL, "no-dns", WithHTTPClient(srv.Client()), WithRequesterLogger(quietLogger()))
	if !errors.Is(err, dberr.APIUnavailable) {
		t.Fatalf("want api unavailable, got %v", err)
	}
}

// queryServer answers the first result poll with 202 and then serves two
// pages linked through "next".
func queryServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var polls atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, "srv-"+r.URL.Path)
		switch r.URL.Path {
		case "/api/query":
			writeJSON(w, http.StatusAccepted, map[string]any{"current": srv.URL + "/api/query/q1"})
		case "/api/query/q1":
			if r.URL.Query().Get("wait") == "" {
				t.Errorf("poll without wait parameter")
			}
			if polls.Add(1) == 1 {
				writeJSON(w, http.StatusAccepted, map[string]any{"current": "/query/q1"})
				return
			}
			writeJSON(w, 200, map[string]any{
				"data":          [][]any{{1, "a"}},
				"columns":       []map[string]any{{"name": "id", "columnType": map[string]any{"clazz": "int"}}, {"name": "v", "columnType": map[string]any{"clazz": "string"}}},
				"has_next_page": true,
				"next":          "/query/q1/2",
			})
		case "/api/query/q1/2":
			writeJSON(w, 200, map[string]any{
				"data":          [][]any{{2, "b"}},
				"columns":       []map[string]any{{"name": "id", "columnType": map[string]any{"clazz": "int"}}, {"name": "v", "columnType": map[string]any{"clazz": "string"}}},
				"has_next_page": false,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	return srv, &polls
}

func TestQueryAPI_WithEngine(t *testing.T) {
	t.Parallel()

	srv, polls := queryServer(t)
	defer srv.Close()

	api := NewQueryAPI(newTestRequester(t, srv, "tok"), quietLogger())
	engine := query.NewEngine(api, query.NewPollerBuilder(query.WithInterval(time.Millisecond)))

	stream, err := engine.Execute(context.Background(), "SELECT id, v FROM t", 5*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if polls.Load() != 2 {
		t.Fatalf("want 2 polls for the first page, got %d", polls.Load())
	}

	var got []string
	for row, err := range stream.All(context.Background()) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		got = append(got, fmt.Sprintf("%v", row.Values))
	}
	if strings.Join(got, "|") != "[1 a]|[2 b]" {
		t.Fatalf("unexpected rows %q", got)
	}
}

func TestResultSource_MissingNext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, "srv-9")
		writeJSON(w, 200, map[string]any{"data": [][]any{{1}}, "columns": []any{}, "has_next_page": true})
	}))
	defer srv.Close()

	src, err := NewQueryAPI(newTestRequester(t, srv, "tok"), quietLogger()).Submit(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = src.Next(context.Background(), time.Second)
	if !errors.Is(err, dberr.PayloadPathKey) || dberr.RequestIDOf(err) != "srv-9" {
		t.Fatalf("want payload path fault for next, got %v", err)
	}
}

func TestResultSource_MalformedPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	src, err := NewQueryAPI(newTestRequester(t, srv, "tok"), quietLogger()).Submit(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = src.Next(context.Background(), time.Second)
	if !errors.Is(err, dberr.Payload) || !errors.Is(err, dberr.API) {
		t.Fatalf("want payload fault in the API family, got %v", err)
	}
	if src.Done() {
		t.Fatal("a failed page must not mark the source done")
	}
}
