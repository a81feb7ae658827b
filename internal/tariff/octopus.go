package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"
)

const (
	octopusAPIBase = "https://api.octopus.energy/v1"
	// Current Agile product code - update as needed
	defaultAgileProduct = "AGILE-24-10-01"
)

// RateSlot is one half-hourly unit rate as published by the Agile API,
// VAT included.
type RateSlot struct {
	Start     time.Time
	End       time.Time
	UnitPrice float64
}

// OctopusClient fetches electricity prices from the Octopus Energy Agile
// tariff.
type OctopusClient struct {
	httpClient *http.Client
	baseURL    string
	product    string
	region     string
}

// NewOctopusClient creates a new client for the Octopus Agile API. region
// is the single-letter DNO region code, e.g. "C" for London.
func NewOctopusClient(region string) *OctopusClient {
	return &OctopusClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    octopusAPIBase,
		product:    defaultAgileProduct,
		region:     region,
	}
}

// octopusResponse represents the API response structure
type octopusResponse struct {
	Count    int          `json:"count"`
	Next     *string      `json:"next"`
	Previous *string      `json:"previous"`
	Results  []resultItem `json:"results"`
}

type resultItem struct {
	ValueExcVAT   float64   `json:"value_exc_vat"`
	ValueIncVAT   float64   `json:"value_inc_vat"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	PaymentMethod *string   `json:"payment_method"`
}

// HalfHourly fetches the half-hourly unit rates covering one UTC day.
func (c *OctopusClient) HalfHourly(ctx context.Context, day time.Time) ([]RateSlot, error) {
	// Tariff code shape: E-1R-{PRODUCT}-{REGION}
	tariffCode := fmt.Sprintf("E-1R-%s-%s", c.product, c.region)
	endpoint := fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/standard-unit-rates/",
		c.baseURL, c.product, tariffCode)

	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	params := url.Values{}
	params.Add("period_from", startOfDay.Format(time.RFC3339))
	params.Add("period_to", endOfDay.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", endpoint, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var octResp octopusResponse
	if err := json.NewDecoder(resp.Body).Decode(&octResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	slots := make([]RateSlot, 0, len(octResp.Results))
	for _, r := range octResp.Results {
		slots = append(slots, RateSlot{
			Start:     r.ValidFrom,
			End:       r.ValidTo,
			UnitPrice: r.ValueIncVAT,
		})
	}

	// The API returns slots in reverse chronological order.
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	return slots, nil
}

// FetchDay fetches one UTC day of Agile rates and folds the half-hourly
// slots into the hourly curve the planner works with, averaging the slots
// inside each hour. Every hour of the day must be covered; Agile publishes
// the following day around 16:00, so asking too early fails here.
func (c *OctopusClient) FetchDay(ctx context.Context, day time.Time) (Tariff, error) {
	slots, err := c.HalfHourly(ctx, day)
	if err != nil {
		return Tariff{}, err
	}

	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	sums := make([]float64, DefaultHorizon)
	counts := make([]int, DefaultHorizon)
	for _, s := range slots {
		hour := int(s.Start.Sub(startOfDay) / time.Hour)
		if hour < 0 || hour >= DefaultHorizon {
			continue
		}
		sums[hour] += s.UnitPrice
		counts[hour]++
	}

	hourly := make([]float64, DefaultHorizon)
	for h := range hourly {
		if counts[h] == 0 {
			return Tariff{}, fmt.Errorf("rates for %s cover no slot in hour %d", startOfDay.Format("2006-01-02"), h)
		}
		hourly[h] = sums[h] / float64(counts[h])
	}

	return Tariff{
		Name:   fmt.Sprintf("agile-%s-%s", c.region, startOfDay.Format("2006-01-02")),
		Unit:   "p/kWh",
		Hourly: hourly,
	}, nil
}
