// Package reviews collects review samples for an app across star-rating
// tiers, caching each tier independently for 24 hours.
package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/reviewlens/reviewlens/pkg/models"
)

// Sentinel errors for review-source failures. ErrAppNotFound is the only
// one that aborts a pipeline; the rest are tolerated per tier.
var (
	ErrAppNotFound       = errors.New("app not found on review source")
	ErrSourceUnreachable = errors.New("review source unreachable")
	ErrSourceTimeout     = errors.New("review source timeout")
	ErrSourceError       = errors.New("review source error")
)

// Source is the interface for fetching raw reviews from the remote service.
type Source interface {
	Fetch(ctx context.Context, appID string, tier, limit int) ([]models.Review, error)
	Ready(ctx context.Context) error
}

// HTTPSource implements Source against the review-source HTTP API.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a new review-source HTTP client.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch returns reviews for appID filtered to the given star-rating tier.
// If the source cannot filter by rating it responds 422 unsupported_filter;
// in that case the request is repeated unfiltered and whatever comes back
// stands in for the tier. That mixes ratings into the bucket, which is a
// known approximation.
func (s *HTTPSource) Fetch(ctx context.Context, appID string, tier, limit int) ([]models.Review, error) {
	reviews, err := s.fetch(ctx, appID, &tier, limit)
	if errors.Is(err, errUnsupportedFilter) {
		return s.fetch(ctx, appID, nil, limit)
	}
	return reviews, err
}

var errUnsupportedFilter = errors.New("rating filter not supported")

func (s *HTTPSource) fetch(ctx context.Context, appID string, tier *int, limit int) ([]models.Review, error) {
	params := url.Values{}
	if tier != nil {
		params.Set("rating", strconv.Itoa(*tier))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	u := fmt.Sprintf("%s/v1/apps/%s/reviews", s.baseURL, url.PathEscape(appID))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrAppNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var body sourceErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error == "unsupported_filter" {
			return nil, errUnsupportedFilter
		}
		return nil, fmt.Errorf("%w: status %d", ErrSourceError, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrSourceError, resp.StatusCode)
	}

	var body sourceReviewsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding reviews response: %w", err)
	}

	reviews := make([]models.Review, 0, len(body.Reviews))
	for _, r := range body.Reviews {
		reviews = append(reviews, models.Review{
			Text:     r.Text,
			Score:    r.Score,
			Date:     r.Date,
			ThumbsUp: r.ThumbsUp,
			Author:   r.Author,
		})
	}
	return reviews, nil
}

func (s *HTTPSource) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/ready", s.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: source not ready (status %d)", ErrSourceUnreachable, resp.StatusCode)
	}

	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
}

// --- review source response types ---

type sourceReviewsResponse struct {
	Reviews []sourceReview `json:"reviews"`
}

type sourceReview struct {
	Text     string    `json:"text"`
	Score    int       `json:"score"`
	Date     time.Time `json:"date"`
	ThumbsUp int       `json:"thumbs_up"`
	Author   string    `json:"author"`
}

type sourceErrorResponse struct {
	Error string `json:"error"`
}

// Compile-time check that HTTPSource implements Source.
var _ Source = (*HTTPSource)(nil)
