// Package strategy implements request classification and the retrieval
// strategies that decide how an intercepted request is served.
package strategy

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/edgegate/edgegate/internal/config"
)

// Classification is the request class driving strategy dispatch.
type Classification int

const (
	// ClassBypass marks cross-origin requests that are not intercepted.
	ClassBypass Classification = iota

	// ClassAPI marks requests under the API path prefix.
	ClassAPI

	// ClassImage marks image requests.
	ClassImage

	// ClassStaticAsset marks requests for manifest-listed assets.
	ClassStaticAsset

	// ClassOther marks everything else.
	ClassOther
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	switch c {
	case ClassBypass:
		return "bypass"
	case ClassAPI:
		return "api"
	case ClassImage:
		return "image"
	case ClassStaticAsset:
		return "static"
	case ClassOther:
		return "other"
	default:
		return "unknown"
	}
}

// imageExtensions are path suffixes classified as images.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".svg":  {},
	".ico":  {},
	".avif": {},
}

// Classifier derives a Classification from a request. It is a pure
// function of the request's host, path, and declared content type.
type Classifier struct {
	originHost string
	apiPrefix  string
	assets     map[string]struct{}
}

// NewClassifier builds a classifier from configuration.
func NewClassifier(origin config.OriginConfig, assets config.AssetsConfig) (*Classifier, error) {
	parsed, err := url.Parse(origin.URL)
	if err != nil {
		return nil, err
	}

	assetSet := make(map[string]struct{}, len(assets.Manifest))
	for _, a := range assets.Manifest {
		assetSet[a] = struct{}{}
	}

	return &Classifier{
		originHost: parsed.Host,
		apiPrefix:  origin.APIPrefix,
		assets:     assetSet,
	}, nil
}

// Classify classifies a request. Rules apply in priority order: foreign
// hosts bypass, the API prefix wins over content type, images win over the
// asset manifest.
func (c *Classifier) Classify(r *http.Request) Classification {
	if host := requestHost(r); host != "" && !strings.EqualFold(host, c.originHost) {
		return ClassBypass
	}

	if strings.HasPrefix(r.URL.Path, c.apiPrefix) {
		return ClassAPI
	}

	if isImageRequest(r) {
		return ClassImage
	}

	if _, ok := c.assets[r.URL.Path]; ok {
		return ClassStaticAsset
	}

	return ClassOther
}

// requestHost returns the host a request is addressed to. Absolute-form
// URLs (proxy requests) carry it in the URL; otherwise the Host header.
func requestHost(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.Host
	}
	return r.Host
}

// isImageRequest reports whether the request declares or implies an image
// response: an image/* Accept preference or a known image extension.
func isImageRequest(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.HasPrefix(accept, "image/") {
		return true
	}

	ext := strings.ToLower(path.Ext(r.URL.Path))
	_, ok := imageExtensions[ext]
	return ok
}

// ExpectsDocument reports whether the request expects a full HTML document,
// which makes it eligible for the offline fallback page.
func ExpectsDocument(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
