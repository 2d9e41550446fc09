// Package fetcher retrieves the three per-entity resources from the
// Steam store: the appdetails API, the appreviews API, and the store
// page itself.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

const (
	defaultBaseURL = "https://store.steampowered.com"

	// captchaMarker in a store page body means the request was answered
	// with a challenge interstitial instead of content.
	captchaMarker = "g-recaptcha"

	maxBodyBytes = 8 << 20
)

// ageGateCookies bypass the store's age check so mature titles return
// their real page instead of the gate.
var ageGateCookies = []*http.Cookie{
	{Name: "birthtime", Value: "568022401"},
	{Name: "wants_mature_content", Value: "1"},
	{Name: "Steam_Language", Value: "english"},
	{Name: "steamCountry", Value: "US"},
}

// Config controls the HTTP client behavior.
type Config struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Client implements harvest.Fetcher over plain HTTP with a fixed
// user-agent and the age-gate cookie set on every request.
type Client struct {
	http    *http.Client
	cfg     Config
	backoff *harvest.RateLimitBackoff
	logger  *zap.Logger
}

// New builds a Client. BaseURL is overridable so tests can point the
// client at local servers.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		backoff: harvest.NewRateLimitBackoff(cfg.RetryAttempts, cfg.RetryBackoff),
		logger:  logger,
	}
}

func (c *Client) detailsURL(id harvest.Identifier) string {
	return fmt.Sprintf("%s/api/appdetails?appids=%d&l=english", c.cfg.BaseURL, id)
}

func (c *Client) reviewsURL(id harvest.Identifier) string {
	return fmt.Sprintf("%s/appreviews/%d?json=1&language=english", c.cfg.BaseURL, id)
}

func (c *Client) storePageURL(id harvest.Identifier) string {
	return fmt.Sprintf("%s/app/%d/?l=english", c.cfg.BaseURL, id)
}

// Fetch retrieves all three resources concurrently and aggregates their
// errors with block signals taking precedence: if any sub-fetch was hard
// blocked the whole attempt is hard blocked, then rate limiting, then
// any transient failure.
func (c *Client) Fetch(ctx context.Context, id harvest.Identifier) (harvest.Bundle, error) {
	bundle := harvest.Bundle{AppID: id}

	type slot struct {
		body []byte
		err  error
	}
	var details, reviews, store slot

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		details.body, details.err = c.get(ctx, c.detailsURL(id), false)
	}()
	go func() {
		defer wg.Done()
		reviews.body, reviews.err = c.get(ctx, c.reviewsURL(id), false)
	}()
	go func() {
		defer wg.Done()
		store.body, store.err = c.get(ctx, c.storePageURL(id), true)
	}()
	wg.Wait()

	bundle.Details = details.body
	bundle.Reviews = reviews.body
	bundle.StorePage = store.body

	errs := []error{details.err, reviews.err, store.err}
	if err := worst(errs); err != nil {
		return bundle, err
	}
	return bundle, nil
}

// worst picks the most severe error of the attempt.
func worst(errs []error) error {
	var rateLimited, transient error
	for _, err := range errs {
		switch harvest.Classify(err) {
		case harvest.OutcomeHardBlocked:
			return err
		case harvest.OutcomeRateLimited:
			rateLimited = err
		case harvest.OutcomeTransientFailure:
			transient = err
		}
	}
	if rateLimited != nil {
		return rateLimited
	}
	return transient
}

// get fetches one resource, retrying on 429 per the backoff ladder.
func (c *Client) get(ctx context.Context, url string, checkCaptcha bool) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, status, err := c.do(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", url, err)
		}

		switch {
		case status == http.StatusTooManyRequests:
			if !c.backoff.ShouldRetry(attempt) {
				return nil, fmt.Errorf("get %s after %d attempts: %w", url, attempt+1, harvest.ErrRateLimited)
			}
			wait := c.backoff.Backoff(attempt)
			c.logger.Warn("rate limited, backing off",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
			)
			if err := harvest.Pause(ctx, wait); err != nil {
				return nil, fmt.Errorf("get %s: %w", url, err)
			}
			continue
		case status == http.StatusForbidden:
			return nil, fmt.Errorf("status 403 at %s: %w", url, harvest.ErrHardBlocked)
		case status < 200 || status >= 300:
			return nil, fmt.Errorf("get %s: unexpected status %d", url, status)
		}

		if checkCaptcha && bytes.Contains(body, []byte(captchaMarker)) {
			return nil, fmt.Errorf("captcha challenge at %s: %w", url, harvest.ErrHardBlocked)
		}
		return body, nil
	}
}

func (c *Client) do(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for _, cookie := range ageGateCookies {
		req.AddCookie(cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
