package cache

import "fmt"

// EmbeddingKey addresses a cached vector by model and content hash.
func EmbeddingKey(model, textHash string) string {
	return fmt.Sprintf("embedding:%s:%s", model, textHash)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// ImportCursorKey stores the end of the last Loki import window for a service.
func ImportCursorKey(service string) string {
	return fmt.Sprintf("loki:import:%s", service)
}
