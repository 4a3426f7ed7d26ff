package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// CatalogProbe scrapes a dataset's portal catalog page for its
// "data last updated" timestamp, letting incremental runs skip datasets
// the portal has not refreshed since the watermark.
type CatalogProbe struct {
	client *http.Client
}

func NewCatalogProbe() *CatalogProbe {
	return &CatalogProbe{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// LastUpdated returns the most recent update timestamp advertised on the
// catalog page. CKAN portals render these as spans carrying a
// data-datetime attribute in ISO form.
func (p *CatalogProbe) LastUpdated(ctx context.Context, catalogURL string) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", catalogURL, nil)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := p.client.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("catalog page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return time.Time{}, err
	}

	var newest time.Time
	doc.Find("span[data-datetime]").Each(func(_ int, sel *goquery.Selection) {
		raw, ok := sel.Attr("data-datetime")
		if !ok {
			return
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				if t.After(newest) {
					newest = t
				}
				return
			}
		}
	})

	if newest.IsZero() {
		return time.Time{}, fmt.Errorf("no update timestamp on %s", catalogURL)
	}
	return newest, nil
}
