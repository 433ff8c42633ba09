// Package brreg is a client for the Norwegian Central Coordinating Register
// for Legal Entities (Enhetsregisteret) open data API.
package brreg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-qualifier/internal/resilience"
)

const (
	defaultBaseURL = "https://data.brreg.no/enhetsregisteret/api"
	userAgent      = "lead-qualifier/1.0"
)

// ErrNotFound is returned when the register has no unit for the number.
var ErrNotFound = eris.New("brreg: unit not found")

// Client defines the register lookups used for verification.
type Client interface {
	// GetUnit fetches a main unit (enhet) by org number.
	GetUnit(ctx context.Context, orgNumber string) (*Unit, error)
	// GetSubUnit fetches a sub-unit (underenhet) by org number.
	GetSubUnit(ctx context.Context, orgNumber string) (*Unit, error)
	// SearchByName returns up to size main units whose name matches.
	SearchByName(ctx context.Context, name string, size int) ([]Unit, error)
}

// Code is a coded value with a description (legal form, industry).
type Code struct {
	Code        string `json:"kode"`
	Description string `json:"beskrivelse"`
}

// Address is a business or location address.
type Address struct {
	Municipality     string   `json:"kommune"`
	MunicipalityCode string   `json:"kommunenummer"`
	PostalCode       string   `json:"postnummer"`
	PostalPlace      string   `json:"poststed"`
	Lines            []string `json:"adresse"`
}

// Unit is a main unit or sub-unit as returned by the register.
type Unit struct {
	OrgNumber         string   `json:"organisasjonsnummer"`
	Name              string   `json:"navn"`
	LegalForm         Code     `json:"organisasjonsform"`
	BusinessAddress   *Address `json:"forretningsadresse,omitempty"`
	LocationAddress   *Address `json:"beliggenhetsadresse,omitempty"`
	Employees         *int     `json:"antallAnsatte,omitempty"`
	Industry          *Code    `json:"naeringskode1,omitempty"`
	Bankrupt          bool     `json:"konkurs"`
	UnderLiquidation  bool     `json:"underAvvikling"`
	ForcedDissolution bool     `json:"underTvangsavviklingEllerTvangsopplosning"`
	ParentOrgNumber   string   `json:"overordnetEnhet,omitempty"`
	Founded           string   `json:"stiftelsesdato,omitempty"`
	Website           string   `json:"hjemmeside,omitempty"`
}

// Address returns the business address, or the location address for
// sub-units.
func (u *Unit) Address() *Address {
	if u.BusinessAddress != nil {
		return u.BusinessAddress
	}
	return u.LocationAddress
}

type searchPage struct {
	Embedded struct {
		Units []Unit `json:"enheter"`
	} `json:"_embedded"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a register client. The API is open and needs no key.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(10, 10),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) GetUnit(ctx context.Context, orgNumber string) (*Unit, error) {
	var u Unit
	if err := c.get(ctx, "get_unit", "/enheter/"+url.PathEscape(orgNumber), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *httpClient) GetSubUnit(ctx context.Context, orgNumber string) (*Unit, error) {
	var u Unit
	if err := c.get(ctx, "get_sub_unit", "/underenheter/"+url.PathEscape(orgNumber), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *httpClient) SearchByName(ctx context.Context, name string, size int) ([]Unit, error) {
	if size <= 0 {
		size = 5
	}
	q := url.Values{}
	q.Set("navn", name)
	q.Set("size", strconv.Itoa(size))

	var page searchPage
	if err := c.get(ctx, "search", "/enheter?"+q.Encode(), &page); err != nil {
		if eris.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return page.Embedded.Units, nil
}

// get fetches path and decodes JSON into out. 404 and 410 (deleted unit)
// map to ErrNotFound.
func (c *httpClient) get(ctx context.Context, op, path string, out any) error {
	return resilience.Do(ctx, c.retry.For("brreg", op), func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return eris.Wrap(err, "brreg: rate limit")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return eris.Wrap(err, "brreg: create request")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, fmt.Sprintf("brreg: %s", op))
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "brreg: read response body")
		}

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return ErrNotFound
		case resp.StatusCode != http.StatusOK:
			return resilience.StatusError("brreg", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return eris.Wrap(err, "brreg: decode response")
		}
		return nil
	})
}
