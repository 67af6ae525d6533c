package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/model"
)

// StatusChange is posted to the webhook when a refresh moves a property to
// a new status.
type StatusChange struct {
	PropertyID int64               `json:"property_id"`
	Tenant     string              `json:"tenant"`
	Address    string              `json:"address"`
	From       model.ListingStatus `json:"from"`
	To         model.ListingStatus `json:"to"`
	SoldDate   *string             `json:"sold_date,omitempty"`
	Confidence float64             `json:"confidence"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Notifier delivers status changes to a webhook. A zero URL disables it.
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier creates a webhook notifier.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify delivers changes one by one and returns how many were accepted.
func (n *Notifier) Notify(ctx context.Context, changes []StatusChange) int {
	if n == nil || n.url == "" || len(changes) == 0 {
		return 0
	}

	sent := 0
	for _, c := range changes {
		if err := n.post(ctx, c); err != nil {
			zap.L().Error("scheduler: failed to send status change",
				zap.Int64("property_id", c.PropertyID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (n *Notifier) post(ctx context.Context, change StatusChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return eris.Wrap(err, "scheduler: marshal status change")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "scheduler: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "scheduler: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("scheduler: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
