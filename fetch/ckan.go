package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// RawRecord is one untyped CKAN datastore row.
type RawRecord map[string]any

// CKANClient talks to a CKAN datastore API (Montreal's open-data portal).
// Delay, when set, is the pause between pagination requests so bulk
// fetches stay polite to the portal.
type CKANClient struct {
	base   string
	client *http.Client
	Delay  time.Duration
}

func NewCKANClient(base string) *CKANClient {
	return &CKANClient{
		base: base,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type ckanResult struct {
	Records []RawRecord `json:"records"`
	Total   int         `json:"total"`
}

type ckanResponse struct {
	Success bool            `json:"success"`
	Error   json.RawMessage `json:"error"`
	Result  ckanResult      `json:"result"`
}

// QuerySQL runs a SQL query through datastore_search_sql.
func (c *CKANClient) QuerySQL(ctx context.Context, sqlQuery string) ([]RawRecord, error) {
	endpoint := fmt.Sprintf("%s/datastore_search_sql?sql=%s", c.base, url.QueryEscape(sqlQuery))

	result, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// QueryPaginated walks datastore_search page by page until the reported
// total is reached or a short page comes back.
func (c *CKANClient) QueryPaginated(ctx context.Context, resource string, pageSize int) ([]RawRecord, error) {
	if pageSize <= 0 {
		pageSize = 32000
	}

	var all []RawRecord
	for offset := 0; ; offset += pageSize {
		endpoint := fmt.Sprintf("%s/datastore_search?resource_id=%s&limit=%d&offset=%d",
			c.base, url.QueryEscape(resource), pageSize, offset)

		result, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}
		if len(result.Records) == 0 {
			break
		}

		all = append(all, result.Records...)
		log.Printf("ckan: fetched %d/%d records from %s", len(all), result.Total, resource)

		if len(all) >= result.Total || len(result.Records) < pageSize {
			break
		}

		if c.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Delay):
			}
		}
	}

	return all, nil
}

func (c *CKANClient) get(ctx context.Context, endpoint string) (*ckanResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("ckan API error %d: %s", resp.StatusCode, string(body))
	}

	var parsed ckanResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if !parsed.Success {
		return nil, fmt.Errorf("ckan API error: %s", string(parsed.Error))
	}

	return &parsed.Result, nil
}
