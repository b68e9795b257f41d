package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/sdvagent/pkg/debug"
	"github.com/rhuss/sdvagent/pkg/observability"
)

// Defaults for the history weather API.
const (
	DefaultBaseURL = "http://v.juhe.cn"
	DefaultTimeout = 30 * time.Second
)

// Errors returned by lookups.
var (
	ErrProvinceNotFound = errors.New("province not found")
	ErrCityNotFound     = errors.New("city not found")
)

// Config configures the history weather API client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// ProvincesFile is a JSON province table
	// ({"provinces":[{"id":"1","province":"北京"}]}). When empty the table
	// is fetched from the API once.
	ProvincesFile string

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// Province is one row of the province table.
type Province struct {
	ID       json.Number `json:"id"`
	Province string      `json:"province"`
}

// City is one city of a province.
type City struct {
	ID         json.Number `json:"id"`
	CityName   string      `json:"city_name"`
	ProvinceID json.Number `json:"province_id,omitempty"`
}

// APIError is a non-zero error_code reported by the API.
type APIError struct {
	Code   int
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weather API error %d: %s", e.Code, e.Reason)
}

// envelope is the common response wrapper of the API.
type envelope struct {
	Reason    string          `json:"reason"`
	ErrorCode int             `json:"error_code"`
	Result    json.RawMessage `json:"result"`
}

// Client queries the juhe history weather API.
type Client struct {
	baseURL       string
	apiKey        string
	provincesFile string
	http          *http.Client

	mu        sync.Mutex
	provinces []Province
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := observability.InstrumentClient(cfg.HTTPClient, cfg.Timeout)
	if cfg.HTTPClient != nil && httpClient.Timeout == 0 {
		httpClient.Timeout = cfg.Timeout
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		provincesFile: cfg.ProvincesFile,
		http:          httpClient,
	}
}

// ProvinceID returns the id of a province by its Chinese name, e.g. 北京.
// A trailing 省 or 市 is ignored.
func (c *Client) ProvinceID(ctx context.Context, province string) (string, error) {
	provinces, err := c.loadProvinces(ctx)
	if err != nil {
		return "", err
	}
	want := normalizeName(province)
	for _, p := range provinces {
		if p.Province == province || normalizeName(p.Province) == want {
			return p.ID.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrProvinceNotFound, province)
}

// CityID returns the id of a city in a province.
func (c *Client) CityID(ctx context.Context, provinceID, cityName string) (string, error) {
	var cities []City
	if err := c.get(ctx, "/historyWeather/citys", url.Values{"province_id": {provinceID}}, &cities); err != nil {
		return "", err
	}
	want := normalizeName(cityName)
	for _, city := range cities {
		if city.CityName == cityName || normalizeName(city.CityName) == want {
			return city.ID.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %q in province %s", ErrCityNotFound, cityName, provinceID)
}

// HistoryWeather returns the weather of a city on a date (YYYY-MM-DD) as
// the raw JSON result of the API.
func (c *Client) HistoryWeather(ctx context.Context, cityID, date string) (json.RawMessage, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	var result json.RawMessage
	params := url.Values{"city_id": {cityID}, "weather_date": {date}}
	if err := c.get(ctx, "/historyWeather/weather", params, &result); err != nil {
		return nil, fmt.Errorf("weather of city %s on %s: %w", cityID, date, err)
	}
	return result, nil
}

func (c *Client) loadProvinces(ctx context.Context) ([]Province, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provinces != nil {
		return c.provinces, nil
	}

	var provinces []Province
	if c.provincesFile != "" {
		data, err := os.ReadFile(c.provincesFile)
		if err != nil {
			return nil, fmt.Errorf("reading province table: %w", err)
		}
		var table struct {
			Provinces []Province `json:"provinces"`
		}
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parsing province table %s: %w", c.provincesFile, err)
		}
		provinces = table.Provinces
	} else if err := c.get(ctx, "/historyWeather/province", nil, &provinces); err != nil {
		return nil, fmt.Errorf("fetching province table: %w", err)
	}

	c.provinces = provinces
	debug.Log("mcp", "province table loaded", "count", len(provinces))
	return provinces, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("requesting %s: unexpected status %d", path, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	if env.ErrorCode != 0 {
		return &APIError{Code: env.ErrorCode, Reason: env.Reason}
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return fmt.Errorf("requesting %s: empty result", path)
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", path, err)
	}
	return nil
}

func normalizeName(s string) string {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"省", "市"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}
