package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

// Call mirrors what the history service returns. The client never computes
// these fields, it only displays them.
type Call struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"room_id"`
	Type      string     `json:"type"`
	StartedAt time.Time  `json:"start_time"`
	EndedAt   *time.Time `json:"end_time,omitempty"`
	Duration  int        `json:"duration"`
}

// HistoryClient reads and deletes call records; it never writes them.
type HistoryClient struct {
	baseURL string
	http    *http.Client
}

func NewHistoryClient(baseURL string) *HistoryClient {
	return &HistoryClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// List fetches the most recent records.
func (h *HistoryClient) List(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}
	var out struct {
		Calls []Call `json:"calls"`
	}
	err := requests.URL(h.baseURL + "/call/history").
		Client(h.http).
		Param("limit", strconv.Itoa(limit)).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeNetworkError, err)
	}
	return out.Calls, nil
}

// Delete removes one record by ID.
func (h *HistoryClient) Delete(ctx context.Context, id string) error {
	err := requests.URL(h.baseURL + "/call/" + id).
		Client(h.http).
		Delete().
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusNotFound) {
			return apperrors.NewAppErrorf(apperrors.ErrCodeNotFound, "call %s not found", id)
		}
		return apperrors.WrapError(apperrors.ErrCodeNetworkError, err)
	}
	return nil
}
