package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pawtalk/pkg/auth"
	"pawtalk/pkg/protocol"
)

// RESTHistory implements HistoryFetcher over the history endpoint with
// the same signed-identity headers the websocket dialer uses. It walks
// backward pages until it is past the requested point; messages at the
// exact boundary are included and left to the caller's dedup.
type RESTHistory struct {
	BaseURL    string
	APIKey     string
	UserID     string
	Role       string
	SigningKey string

	HTTPClient *http.Client
}

func (h *RESTHistory) Since(ctx context.Context, convID string, afterMillis int64) ([]protocol.WireMessage, error) {
	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	var out []protocol.WireMessage
	before := int64(0)
	for {
		u := fmt.Sprintf("%s/v1/conversations/%s/messages", strings.TrimRight(h.BaseURL, "/"), url.PathEscape(convID))
		if before > 0 {
			u += "?before=" + strconv.FormatInt(before, 10)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		if h.APIKey != "" {
			req.Header.Set("X-API-Key", h.APIKey)
		}
		req.Header.Set("X-User-ID", h.UserID)
		if h.Role != "" {
			req.Header.Set("X-User-Role", h.Role)
		}
		if h.SigningKey != "" {
			req.Header.Set("X-User-Signature", auth.Sign(h.SigningKey, h.UserID, h.Role))
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var envelope struct {
			Data struct {
				Messages   []protocol.WireMessage `json:"messages"`
				HasMore    bool                   `json:"has_more"`
				NextBefore int64                  `json:"next_before"`
			} `json:"data"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&envelope)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("history fetch: status %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		page := envelope.Data
		done := false
		for _, m := range page.Messages {
			if m.SentAt < afterMillis {
				done = true
				break
			}
			out = append(out, m)
		}
		if done || !page.HasMore || page.NextBefore == 0 {
			break
		}
		before = page.NextBefore
	}
	// oldest first, so surfacing preserves conversation order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
