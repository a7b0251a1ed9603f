package fetch

import "net/http"

// DefaultHeaders returns browser-like request headers. Several payer CDNs
// reject requests that look like bots.
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.Set("Accept", "application/json, application/octet-stream, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	// Only gzip: Decompress handles it by magic bytes.
	h.Set("Accept-Encoding", "gzip")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	return h
}
