package metricstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/ppadmin/spreadsheet"
)

func TestPost(t *testing.T) {
	var gotPath, gotAuth, gotCT, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	records := []spreadsheet.Record{
		{"count": spreadsheet.IntValue(3), "ratio": spreadsheet.FloatValue(1)},
	}
	if err := c.Post(context.Background(), "carers-allowance", "weekly claims", "tok", records); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/data/carers-allowance/weekly%20claims" {
		t.Errorf("path: %q", gotPath)
	}
	if gotAuth != "Bearer tok" || gotCT != "application/json" {
		t.Errorf("headers: auth=%q ct=%q", gotAuth, gotCT)
	}
	if gotBody != `[{"count":3,"ratio":1.0}]` {
		t.Errorf("body: %s", gotBody)
	}
}

func TestPost_EmptyRecords(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	if err := New(srv.URL).Post(context.Background(), "g", "t", "", nil); err != nil {
		t.Fatal(err)
	}
	if gotBody != "[]" {
		t.Fatalf("body: %q", gotBody)
	}
}

func TestPost_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		user     bool
		problems []string
	}{
		{
			"json validation", http.StatusBadRequest,
			`{"status":"error","message":"Validation failed","errors":["_timestamp is not a valid datetime"]}`,
			true, []string{"Validation failed", "_timestamp is not a valid datetime"},
		},
		{
			"html page", http.StatusForbidden,
			"<html><head><style>p{}</style></head><body><h1>Forbidden</h1><p>Token &amp; data set don't match</p></body></html>",
			true, []string{"Forbidden Token & data set don't match"},
		},
		{"empty body", http.StatusBadGateway, "", false, []string{"Bad Gateway"}},
		{"server error", http.StatusInternalServerError, `{"status":"error","message":"database unavailable"}`, false, []string{"database unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := New(srv.URL).Post(context.Background(), "g", "t", "tok", []spreadsheet.Record{})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status: %d", apiErr.StatusCode)
			}
			if IsUserError(err) != tt.user {
				t.Errorf("IsUserError: got %v", !tt.user)
			}
			got := apiErr.Problems()
			if strings.Join(got, "|") != strings.Join(tt.problems, "|") {
				t.Errorf("problems: got %q, want %q", got, tt.problems)
			}
		})
	}
}

func TestPost_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Post(context.Background(), "g", "t", "tok", nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if IsUserError(err) {
		t.Fatal("transport errors are not user errors")
	}
}

func TestPost_RecordsEncodeErrorCells(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	records := []spreadsheet.Record{{"v": spreadsheet.ErrorValue("#DIV/0!")}}
	if err := New(srv.URL).Post(context.Background(), "g", "t", "tok", records); err != nil {
		t.Fatal(err)
	}
	cell, ok := got[0]["v"].(map[string]any)
	if !ok || cell["error"] != "#DIV/0!" {
		t.Fatalf("error cell: %v", got)
	}
}

func TestBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	var status, calls atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.Breaker = b
	ctx := context.Background()

	for range 2 {
		if err := c.Post(ctx, "g", "t", "tok", nil); err == nil || errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected store error, got %v", err)
		}
	}
	if !b.Open() {
		t.Fatal("breaker should be open after 2 failures")
	}
	if err := c.Post(ctx, "g", "t", "tok", nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("open breaker: got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls while open: %d", n)
	}

	// Probe after the reset timeout; success closes the breaker.
	now = now.Add(2 * time.Minute)
	status.Store(http.StatusOK)
	if err := c.Post(ctx, "g", "t", "tok", nil); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.Open() {
		t.Fatal("breaker should be closed after a successful probe")
	}
}

func TestBreaker_IgnoresUserErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.Breaker = NewBreaker(1, time.Minute)
	for range 3 {
		if err := c.Post(context.Background(), "g", "t", "tok", nil); !IsUserError(err) {
			t.Fatalf("got %v", err)
		}
	}
	if c.Breaker.Open() {
		t.Fatal("4xx answers must not open the breaker")
	}
}

func TestBreaker_IgnoresCallerFailures(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		records []spreadsheet.Record
	}{
		{"unencodable records", context.Background(), []spreadsheet.Record{{"v": spreadsheet.FloatValue(math.Inf(1))}}},
		{"cancelled context", cancelled, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			c := New(srv.URL)
			c.Breaker = NewBreaker(1, time.Minute)
			for range 3 {
				if err := c.Post(tt.ctx, "g", "t", "tok", tt.records); err == nil || errors.Is(err, ErrUnavailable) {
					t.Fatalf("got %v", err)
				}
			}
			if c.Breaker.Open() {
				t.Fatal("breaker opened on a failure the store did not cause")
			}
			if n := calls.Load(); n != 0 {
				t.Fatalf("store saw %d calls", n)
			}
		})
	}
}

func TestBreaker_CancelledProbeReleasesSlot(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.Breaker = b
	if err := c.Post(context.Background(), "g", "t", "tok", nil); err == nil {
		t.Fatal("expected store error")
	}
	if !b.Open() {
		t.Fatal("breaker should be open")
	}

	now = now.Add(2 * time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Post(ctx, "g", "t", "tok", nil); err == nil || errors.Is(err, ErrUnavailable) {
		t.Fatalf("cancelled probe: got %v", err)
	}

	status.Store(http.StatusOK)
	if err := c.Post(context.Background(), "g", "t", "tok", nil); err != nil {
		t.Fatalf("next probe: %v", err)
	}
	if b.Open() {
		t.Fatal("breaker should be closed after a successful probe")
	}
}
