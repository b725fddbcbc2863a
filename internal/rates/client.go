package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"plata/internal/core"
)

const (
	defaultQuoteURL      = "https://dolarapi.com/v1/dolares/oficial"
	defaultHistoricalURL = "https://api.argentinadatos.com/v1/cotizaciones/dolares/oficial"
	defaultTimeout       = 5 * time.Second
)

// HTTPProvider fetches official ARS/USD quotes over HTTP: the live quote
// from dolarapi and historical closings from argentinadatos. All requests
// share one bounded-timeout client so a slow provider can never block a
// dashboard request indefinitely.
type HTTPProvider struct {
	client        *http.Client
	quoteURL      string
	historicalURL string
}

type quoteResponse struct {
	Compra decimal.Decimal `json:"compra"`
	Venta  decimal.Decimal `json:"venta"`
	Fecha  string          `json:"fecha"`
}

// NewHTTPProvider creates a provider with the default endpoints. Empty
// arguments keep the defaults; timeout <= 0 keeps the default timeout.
func NewHTTPProvider(quoteURL, historicalURL string, timeout time.Duration) *HTTPProvider {
	if quoteURL == "" {
		quoteURL = defaultQuoteURL
	}
	if historicalURL == "" {
		historicalURL = defaultHistoricalURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPProvider{
		client:        &http.Client{Timeout: timeout},
		quoteURL:      quoteURL,
		historicalURL: strings.TrimRight(historicalURL, "/"),
	}
}

// Current implements Provider.
func (p *HTTPProvider) Current(ctx context.Context) (decimal.Decimal, error) {
	return p.fetch(ctx, p.quoteURL)
}

// ForDate implements Provider. The historical endpoint keys quotes by
// calendar date (yyyy/mm/dd).
func (p *HTTPProvider) ForDate(ctx context.Context, date core.Date) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%04d/%02d/%02d", p.historicalURL, date.Year(), date.Month(), date.Day())
	return p.fetch(ctx, url)
}

func (p *HTTPProvider) fetch(ctx context.Context, url string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: build request: %v", ErrRateUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d from %s", ErrRateUnavailable, resp.StatusCode, url)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %v", ErrRateUnavailable, err)
	}
	if !quote.Venta.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive quote from %s", ErrRateUnavailable, url)
	}
	return quote.Venta, nil
}
