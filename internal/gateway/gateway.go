package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"campaign-engine/internal/domain"

	"github.com/google/uuid"
)

// Error classifies a failed send. Permanent failures (rejected content,
// malformed recipient) must not be retried; everything else is transient.
type Error struct {
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: %v (status %d)", e.Err, e.StatusCode)
	}
	return fmt.Sprintf("gateway: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a gateway failure that retrying
// cannot fix. Unclassified errors count as transient.
func IsPermanent(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Permanent
	}
	return false
}

// Gateway delivers one rendered message to one recipient and returns the
// provider's delivery id.
type Gateway interface {
	Send(ctx context.Context, recipient, body string, media *domain.Media) (string, error)
}

type deliveryResponse struct {
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

type webhookGateway struct {
	url        string
	httpClient *http.Client
}

// NewWebhookGateway creates a Gateway that posts sends to the configured
// webhook endpoint.
func NewWebhookGateway(url string, timeout time.Duration) Gateway {
	if timeout <= 0 {
		timeout = time.Second * 5
	}
	return &webhookGateway{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (g *webhookGateway) Send(ctx context.Context, recipient, body string, media *domain.Media) (string, error) {
	payload := map[string]string{
		"to":      recipient,
		"content": body,
	}
	if media != nil {
		payload["media_type"] = media.Type
		payload["media_url"] = media.URL
	}
	jsonPayload, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return "", &Error{Permanent: true, Err: err}
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("X-Request-ID", uuid.NewString())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// network failure or timeout
		return "", &Error{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		var result deliveryResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			// delivered; the delivery id is best-effort
			return "", nil
		}
		return result.MessageID, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", &Error{StatusCode: resp.StatusCode, Err: errors.New("gateway server error")}
	default:
		return "", &Error{StatusCode: resp.StatusCode, Permanent: true, Err: errors.New("gateway rejected message")}
	}
}
