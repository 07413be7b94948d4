package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtr002/linkboard/internal/interfaces"
)

const DefaultBaseURL = "https://sheets.googleapis.com"

// Client reads cell values through the Sheets v4 REST API using an API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type valueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// ReadValues returns the rows of rangeA1 as strings.
func (c *Client) ReadValues(ctx context.Context, spreadsheetID, rangeA1 string) ([][]string, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}

	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s", c.baseURL,
		url.PathEscape(spreadsheetID), url.PathEscape(rangeA1))
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("valueRenderOption", "FORMATTED_VALUE")
	u += "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to read values: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sheets: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var vr valueRange
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("sheets: failed to decode values: %w", err)
	}
	return vr.Values, nil
}

var headerAliases = map[string]string{
	"code":      "code",
	"mart_code": "code",
	"martcode":  "code",
	"name":      "name",
	"mart_name": "name",
	"martname":  "name",
	"region":    "region",
	"manager":   "manager",
}

// ParseMarts maps sheet rows to marts. The first row is the header; rows
// without a code are counted as skipped; a repeated code keeps the last row.
func ParseMarts(values [][]string) (marts []*interfaces.Mart, skipped int, err error) {
	if len(values) == 0 {
		return nil, 0, nil
	}

	columns := make(map[string]int)
	for i, h := range values[0] {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", "_"))
		if field, ok := headerAliases[key]; ok {
			if _, seen := columns[field]; !seen {
				columns[field] = i
			}
		}
	}
	if _, ok := columns["code"]; !ok {
		return nil, 0, fmt.Errorf("sheets: header row has no code column")
	}

	cell := func(row []string, field string) string {
		i, ok := columns[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	index := make(map[string]int)
	for _, row := range values[1:] {
		code := cell(row, "code")
		if code == "" {
			skipped++
			continue
		}
		m := &interfaces.Mart{
			Code:    code,
			Name:    cell(row, "name"),
			Region:  cell(row, "region"),
			Manager: cell(row, "manager"),
		}
		if i, ok := index[code]; ok {
			marts[i] = m
			skipped++
			continue
		}
		index[code] = len(marts)
		marts = append(marts, m)
	}
	return marts, skipped, nil
}
