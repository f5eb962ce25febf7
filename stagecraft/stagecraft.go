// Package stagecraft looks up data-set configuration in the dashboard
// configuration service: which data sets exist and the bearer token that
// authorises writes to each one.
package stagecraft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/ppadmin/horosafe"
)

// ErrNotFound is returned when no data set matches.
var ErrNotFound = errors.New("stagecraft: data set not found")

// DataSet is the configuration of one writable data set.
type DataSet struct {
	Name         string `json:"name"`
	DataGroup    string `json:"data_group"`
	DataType     string `json:"data_type"`
	BearerToken  string `json:"bearer_token"`
	UploadFormat string `json:"upload_format"`
}

// Client queries the configuration service with the admin token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a Client.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// DataSet returns the data set for group and typ.
func (c *Client) DataSet(ctx context.Context, group, typ string) (*DataSet, error) {
	q := url.Values{}
	q.Set("data-group", group)
	q.Set("data-type", typ)
	sets, err := c.list(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range sets {
		if sets[i].DataGroup == group && sets[i].DataType == typ {
			return &sets[i], nil
		}
	}
	return nil, ErrNotFound
}

// DataSets lists every data set.
func (c *Client) DataSets(ctx context.Context) ([]DataSet, error) {
	return c.list(ctx, nil)
}

func (c *Client) list(ctx context.Context, q url.Values) ([]DataSet, error) {
	u := strings.TrimRight(c.BaseURL, "/") + "/data-sets"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("stagecraft: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stagecraft: get data sets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stagecraft: get data sets: http %d", resp.StatusCode)
	}
	data, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("stagecraft: read data sets: %w", err)
	}
	var sets []DataSet
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("stagecraft: decode data sets: %w", err)
	}
	return sets, nil
}
