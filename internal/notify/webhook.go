package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// WebhookPusher posts notifications as JSON to a push provider endpoint,
// authenticating with a bearer key when one is configured.
type WebhookPusher struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewWebhookPusher(endpoint, key string) *WebhookPusher {
	return &WebhookPusher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

type pushBody struct {
	Message pushMessage `json:"message"`
}

type pushMessage struct {
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
}

func (w *WebhookPusher) Push(ctx context.Context, userID string, n models.Notification) error {
	b, err := json.Marshal(pushBody{Message: pushMessage{
		UserID: userID,
		Title:  n.Title,
		Body:   n.Message,
		Data:   map[string]string{"type": n.Type, "bookingId": n.BookingID, "notificationId": n.ID},
	}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Key != "" {
		req.Header.Set("Authorization", "Bearer "+w.Key)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}
