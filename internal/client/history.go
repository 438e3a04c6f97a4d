package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// HistoryFetcher loads the most recent messages of a room, oldest first.
type HistoryFetcher interface {
	Fetch(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

// HistoryClient reads history over the REST API.
type HistoryClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHistoryClient(baseURL string, hc *http.Client) *HistoryClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HistoryClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

type historyResponse struct {
	Messages []core.MessageDTO `json:"messages"`
	Error    string            `json:"error"`
}

func (h *HistoryClient) Fetch(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	u := fmt.Sprintf("%s/api/rooms/%s/messages", h.BaseURL, url.PathEscape(string(room)))
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, domain.ErrRoomNotFound
	case http.StatusForbidden:
		return nil, domain.ErrForbidden
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, body.Error)
	default:
		return nil, fmt.Errorf("fetch history: status %d: %s", resp.StatusCode, body.Error)
	}

	out := make([]domain.Message, 0, len(body.Messages))
	for _, dto := range body.Messages {
		m, err := dto.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
