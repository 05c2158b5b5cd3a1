package reviews

import (
	"regexp"
	"strings"

	"github.com/reviewlens/reviewlens/pkg/models"
)

// Normalization regexes compiled once at package init.
var (
	reEmail      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reURL        = regexp.MustCompile(`https?://\S+`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Normalize redacts and normalizes a raw review. Author identity is replaced
// with a fixed placeholder and never leaves this package; embedded emails
// and URLs in the text are stripped as well.
func Normalize(r models.Review) models.Review {
	text := reEmail.ReplaceAllString(r.Text, "[redacted]")
	text = reURL.ReplaceAllString(text, "[redacted]")
	text = strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))

	return models.Review{
		Text:     text,
		Score:    r.Score,
		Date:     r.Date,
		ThumbsUp: r.ThumbsUp,
		Author:   models.RedactedAuthor,
	}
}

// NormalizeAll applies Normalize to every review. Returns empty slice for
// empty input (never nil).
func NormalizeAll(rs []models.Review) []models.Review {
	out := make([]models.Review, 0, len(rs))
	for _, r := range rs {
		out = append(out, Normalize(r))
	}
	return out
}
