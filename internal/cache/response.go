package cache

import (
	"encoding/json"
	"net/http"
)

// Response holds a serialized HTTP response for store storage.
type Response struct {
	StatusCode int                 `json:"statusCode"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// IsSuccess reports whether the response carries a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Header returns the first value for the named header, or "".
func (r *Response) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	values := http.Header(r.Headers).Values(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Encode serializes the response for storage.
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResponse deserializes a stored response.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloneHeaders creates a deep copy of HTTP headers.
func CloneHeaders(h http.Header) map[string][]string {
	clone := make(map[string][]string, len(h))
	for k, v := range h {
		vc := make([]string, len(v))
		copy(vc, v)
		clone[k] = vc
	}
	return clone
}
