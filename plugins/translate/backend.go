package translateplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Backend performs the actual translation. Implementations must be
// safe for concurrent use.
type Backend interface {
	Translate(ctx context.Context, text, targetCode string) (string, error)
}

const defaultEndpoint = "https://translate.googleapis.com/translate_a/single"

// googleBackend talks to the public gtx endpoint. No API key, so
// availability is best effort.
type googleBackend struct {
	endpoint string
	http     *http.Client
}

func newGoogleBackend(endpoint string, timeout time.Duration) *googleBackend {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &googleBackend{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (g *googleBackend) Translate(ctx context.Context, text, targetCode string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", targetCode)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate endpoint: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return decodeGtx(body)
}

// decodeGtx unwraps the nested-array response: the first element is a
// list of [translatedSegment, originalSegment, ...] entries.
func decodeGtx(body []byte) (string, error) {
	var root []json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	if len(root) == 0 {
		return "", fmt.Errorf("empty translate response")
	}
	var segments [][]json.RawMessage
	if err := json.Unmarshal(root[0], &segments); err != nil {
		return "", fmt.Errorf("decode translate segments: %w", err)
	}
	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(seg[0], &part); err != nil {
			continue
		}
		sb.WriteString(part)
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("translate response held no text")
	}
	return out, nil
}
