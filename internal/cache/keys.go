package cache

import "fmt"

func ReviewsKey(appID string, tier int) string {
	return fmt.Sprintf("reviews:%s:%d", appID, tier)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
