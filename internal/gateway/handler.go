package gateway

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/pending"
	"github.com/edgegate/edgegate/internal/strategy"
)

// maxRequestBodySize caps buffered write-request bodies.
const maxRequestBodySize = 10 << 20 // 10MB

// handleRequest is the catch-all entry point for intercepted traffic.
func (s *Server) handleRequest(c *gin.Context) {
	class, strat := s.selector.Select(c.Request)
	if class == strategy.ClassBypass {
		s.handleBypass(c)
		return
	}

	if isWriteMethod(c.Request.Method) {
		s.handleWrite(c)
		return
	}

	if strat == nil {
		s.handleBypass(c)
		return
	}

	c.Header("X-Edgegate-Class", class.String())

	resp := strat.Serve(c.Request.Context(), c.Request)
	writeResponse(c, resp)
}

// handleWrite forwards a write request to the origin. When the origin is
// unreachable and deferral is enabled, the request is queued and
// acknowledged with 202 so the client does not lose the submission.
func (s *Server) handleWrite(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodySize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(body) > maxRequestBodySize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	url := s.cfg.Origin.URL + c.Request.URL.RequestURI()

	resp, err := s.fetcher.Do(c.Request.Context(), c.Request.Method, url, c.Request.Header, body)
	if err == nil {
		// The origin is reachable again; flush anything queued.
		if s.replayer != nil {
			s.replayer.Trigger()
		}
		writeResponse(c, resp)
		return
	}

	// An upstream status is a real answer; relay it rather than queueing
	// a request the origin already rejected.
	if resp != nil {
		writeResponse(c, resp)
		return
	}

	if s.pending == nil || !fetch.IsTransient(err) {
		writeResponse(c, strategy.SynthesizeUnavailable())
		return
	}

	id, addErr := s.pending.Add(c.Request.Context(), pending.Submission{
		Method:  c.Request.Method,
		URL:     url,
		Headers: c.Request.Header.Clone(),
		Body:    body,
	})
	if addErr != nil {
		s.logger.Error("failed to queue submission",
			observability.String("url", url),
			observability.Error(addErr),
		)
		writeResponse(c, strategy.SynthesizeUnavailable())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "queued",
		"id":     id,
	})
}

// handleBypass passes a cross-origin request through untouched.
func (s *Server) handleBypass(c *gin.Context) {
	req := c.Request.Clone(c.Request.Context())
	if !req.URL.IsAbs() {
		req.URL.Scheme = "http"
		if req.TLS != nil {
			req.URL.Scheme = "https"
		}
		req.URL.Host = req.Host
	}
	req.RequestURI = ""

	resp, err := s.bypassRT.RoundTrip(req)
	if err != nil {
		s.logger.Warn("bypass request failed",
			observability.String("host", req.URL.Host),
			observability.Error(err),
		)
		writeResponse(c, strategy.SynthesizeUnavailable())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k, vals := range resp.Header {
		for _, v := range vals {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}

// writeResponse copies a stored or fetched response onto the wire.
func writeResponse(c *gin.Context, resp *cache.Response) {
	for k, vals := range resp.Headers {
		for _, v := range vals {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	_, _ = c.Writer.Write(resp.Body)
}

// isWriteMethod reports whether a method mutates origin state.
func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
