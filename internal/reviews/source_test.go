package reviews_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/reviewlens/reviewlens/internal/reviews"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewsBody = `{"reviews": [
	{"text": "keeps crashing on my phone", "score": 1, "date": "2026-08-01T10:00:00Z", "thumbs_up": 14, "author": "Jamie R."},
	{"text": "slow after the last update", "score": 2, "date": "2026-08-02T11:30:00Z", "thumbs_up": 3, "author": "someone"}
]}`

func TestFetch_Success(t *testing.T) {
	var gotRating, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/apps/com.example.app/reviews", r.URL.Path)
		gotRating = r.URL.Query().Get("rating")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reviewsBody))
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	got, err := src.Fetch(context.Background(), "com.example.app", 1, 50)
	require.NoError(t, err)

	assert.Equal(t, "1", gotRating)
	assert.Equal(t, "50", gotLimit)
	require.Len(t, got, 2)
	assert.Equal(t, "keeps crashing on my phone", got[0].Text)
	assert.Equal(t, 1, got[0].Score)
	assert.Equal(t, 14, got[0].ThumbsUp)
	assert.Equal(t, "Jamie R.", got[0].Author)
}

func TestFetch_AppNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	_, err := src.Fetch(context.Background(), "com.gone.app", 1, 50)
	assert.ErrorIs(t, err, reviews.ErrAppNotFound)
}

func TestFetch_UnsupportedFilterFallsBackUnfiltered(t *testing.T) {
	var mu sync.Mutex
	var ratings []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ratings = append(ratings, r.URL.Query().Get("rating"))
		mu.Unlock()

		if r.URL.Query().Get("rating") != "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error": "unsupported_filter"}`))
			return
		}
		w.Write([]byte(reviewsBody))
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	got, err := src.Fetch(context.Background(), "com.example.app", 2, 50)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// First request carries the rating filter, the retry drops it.
	require.Len(t, ratings, 2)
	assert.Equal(t, "2", ratings[0])
	assert.Equal(t, "", ratings[1])
}

func TestFetch_Unprocessable_OtherReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": "bad_request"}`))
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	_, err := src.Fetch(context.Background(), "com.example.app", 1, 50)
	assert.ErrorIs(t, err, reviews.ErrSourceError)
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	_, err := src.Fetch(context.Background(), "com.example.app", 1, 50)
	assert.ErrorIs(t, err, reviews.ErrSourceError)
}

func TestFetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"reviews": "oops"`))
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	_, err := src.Fetch(context.Background(), "com.example.app", 1, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestFetch_Unreachable(t *testing.T) {
	src := reviews.NewHTTPSource("http://127.0.0.1:1", time.Second)
	_, err := src.Fetch(context.Background(), "com.example.app", 1, 50)
	assert.ErrorIs(t, err, reviews.ErrSourceUnreachable)
}

func TestReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ready", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	assert.NoError(t, src.Ready(context.Background()))
}

func TestReady_NotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := reviews.NewHTTPSource(srv.URL, 5*time.Second)
	assert.ErrorIs(t, src.Ready(context.Background()), reviews.ErrSourceUnreachable)
}
