package resolver

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy names the extraction rule that produced an image URL.
type Strategy string

// Extraction strategies, in the order they are tried.
const (
	StrategyPrimary Strategy = "primary"
	StrategyOGImage Strategy = "og_image"
)

const (
	primarySelector  = "#goods-img-basis img"
	fallbackSelector = `meta[property="og:image"]`
)

// extractImage parses body and applies the primary selector, then the og:image
// fallback. A zero Match means nothing matched. Only the primary result is resolved
// against pageURL; og:image content is returned verbatim.
func extractImage(body []byte, pageURL string) (Match, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Match{}, fmt.Errorf("parse html: %w", err)
	}

	if src, ok := doc.Find(primarySelector).First().Attr("src"); ok && src != "" {
		return Match{URL: absoluteURL(pageURL, src), Strategy: StrategyPrimary}, nil
	}

	if content, ok := doc.Find(fallbackSelector).First().Attr("content"); ok && content != "" {
		return Match{URL: content, Strategy: StrategyOGImage}, nil
	}

	return Match{}, nil
}

// absoluteURL leaves anything starting with "http" untouched and resolves the rest
// relative to pageURL. References net/url rejects, such as a stray "%" in a file
// name, are joined textually so a non-empty src always yields a URL.
func absoluteURL(pageURL, src string) string {
	if strings.HasPrefix(src, "http") {
		return src
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return joinRaw(pageURL, src)
	}
	ref, err := url.Parse(src)
	if err != nil {
		return joinRaw(pageURL, src)
	}
	return base.ResolveReference(ref).String()
}

// joinRaw resolves src against pageURL without decoding either.
func joinRaw(pageURL, src string) string {
	page := pageURL
	if i := strings.IndexAny(page, "?#"); i >= 0 {
		page = page[:i]
	}
	scheme, rest, ok := strings.Cut(page, "://")
	if !ok {
		return src
	}
	host, path, _ := strings.Cut(rest, "/")
	switch {
	case strings.HasPrefix(src, "//"):
		return scheme + ":" + src
	case strings.HasPrefix(src, "/"):
		return scheme + "://" + host + src
	}
	dir := ""
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir = path[:i+1]
	}
	return scheme + "://" + host + "/" + dir + src
}
