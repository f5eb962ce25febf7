// CLAUDE:SUMMARY Client for the external metrics store: posts parsed records to /data/{group}/{type} with a data-set bearer token.
// Package metricstore writes parsed upload records to the metrics store.
package metricstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/ppadmin/horosafe"
	"github.com/hazyhaar/ppadmin/spreadsheet"
)

// DefaultTimeout bounds a single write when the caller supplies no client.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the store.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return fmt.Sprintf("metricstore: %d: %s", e.StatusCode, msg)
}

// Problems returns the store's complaint as display lines.
func (e *APIError) Problems() []string {
	var out []string
	if e.Message != "" {
		out = append(out, e.Message)
	}
	out = append(out, e.Errors...)
	if len(out) == 0 {
		out = append(out, http.StatusText(e.StatusCode))
	}
	return out
}

// IsUserError reports whether err is the store rejecting the data itself
// (4xx), as opposed to the store being unavailable.
func IsUserError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// Client posts records to the store.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Breaker, when set, short-circuits writes while the store is down.
	Breaker *Breaker
}

// New creates a Client for baseURL with a default breaker.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		Breaker: NewBreaker(5, 30*time.Second),
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Endpoint returns the write URL of a data set.
func (c *Client) Endpoint(group, typ string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/data/" + url.PathEscape(group) + "/" + url.PathEscape(typ)
}

// Post writes records to the data set identified by group and typ,
// authenticated with the data set's bearer token.
//
// Only answers from the store, or its absence, move the breaker. Records
// that fail to encode and calls the caller cancelled leave it as it was.
func (c *Client) Post(ctx context.Context, group, typ, token string, records []spreadsheet.Record) error {
	req, err := c.request(ctx, group, typ, token, records)
	if err != nil {
		return err
	}
	if c.Breaker == nil {
		return c.send(req, group, typ)
	}
	if !c.Breaker.allow() {
		return ErrUnavailable
	}
	err = c.send(req, group, typ)
	if err != nil && ctx.Err() != nil {
		c.Breaker.release()
		return err
	}
	c.Breaker.record(err != nil && !IsUserError(err))
	return err
}

func (c *Client) request(ctx context.Context, group, typ, token string, records []spreadsheet.Record) (*http.Request, error) {
	if records == nil {
		records = []spreadsheet.Record{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("metricstore: encode records: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(group, typ), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("metricstore: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, group, typ string) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("metricstore: post %s/%s: %w", group, typ, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return decodeError(resp)
}

// errorBody is the store's JSON error document.
type errorBody struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

var stripHTML = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// decodeError builds an APIError from a failed response. Proxies in front
// of the store answer with HTML pages; only their text survives.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := horosafe.LimitedReadAll(resp.Body, 64*1024)
	if err != nil {
		return apiErr
	}
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		apiErr.Message = clean(eb.Message)
		for _, e := range eb.Errors {
			if e = clean(e); e != "" {
				apiErr.Errors = append(apiErr.Errors, e)
			}
		}
		return apiErr
	}
	apiErr.Message = clean(string(data))
	return apiErr
}

const maxMessageLen = 500

// clean strips markup, collapses whitespace and bounds the length.
func clean(s string) string {
	s = html.UnescapeString(stripHTML.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxMessageLen {
		s = string([]rune(s)[:maxMessageLen]) + "..."
	}
	return s
}
