package strategy

import (
	"net/http"

	"github.com/edgegate/edgegate/internal/cache"
)

// SyntheticHeader marks responses synthesized by edgegate itself, so a
// placeholder 503 is distinguishable from a real upstream 503.
const SyntheticHeader = "X-Edgegate-Synthetic"

// syntheticBody is the fixed payload of the placeholder response.
const syntheticBody = `{"error":"service unavailable","source":"edgegate"}`

// SynthesizeUnavailable builds the well-formed 503 placeholder returned
// when every other way of answering a request has been exhausted.
func SynthesizeUnavailable() *cache.Response {
	return &cache.Response{
		StatusCode: http.StatusServiceUnavailable,
		Headers: map[string][]string{
			"Content-Type":  {"application/json"},
			SyntheticHeader: {"1"},
		},
		Body: []byte(syntheticBody),
	}
}

// IsSynthetic reports whether a response was synthesized by edgegate.
func IsSynthetic(resp *cache.Response) bool {
	return resp != nil && resp.Header(SyntheticHeader) == "1"
}
