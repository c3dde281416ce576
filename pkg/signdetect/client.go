package signdetect

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

// Detection is the recognizer's verdict for one frame.
type Detection struct {
	Sign     string `json:"sign"`
	Detected bool   `json:"detected"`
}

type detectRequest struct {
	Frame     string `json:"frame"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

// Client calls the sign recognition service with JPEG frames.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Detect submits one frame. A rate-limited response is reported as a
// no-detection so callers can stay silent and keep polling.
func (c *Client) Detect(ctx context.Context, frame []byte, roomID, userID string) (Detection, error) {
	body := detectRequest{
		Frame:     "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}

	var out Detection
	err := requests.URL(c.url).
		Client(c.http).
		BodyJSON(&body).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusTooManyRequests) {
			return Detection{}, nil
		}
		return Detection{}, apperrors.WrapError(apperrors.ErrCodeDetectionFailed, err)
	}
	return out, nil
}
