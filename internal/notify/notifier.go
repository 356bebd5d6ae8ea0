// Package notify delivers push notifications to the sibling mobile/desktop
// application. Delivery is fire-and-forget: failures are logged and never
// reach the caller.
package notify

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/edulink/classchat/internal/types"
)

type Notifier interface {
	NotifyNewMessage(tenantId, roomId string, sender types.Sender, preview string, recipients []string)
	NotifyMention(tenantId, roomId string, sender types.Sender, preview string, mentioned []string)
}

type pushRequest struct {
	Kind       string       `json:"kind"`
	TenantId   string       `json:"tenant_id"`
	RoomId     string       `json:"room_id"`
	Sender     types.Sender `json:"sender"`
	Preview    string       `json:"preview"`
	Recipients []string     `json:"recipients"`
}

// WebhookNotifier POSTs push requests to a sibling application endpoint.
type WebhookNotifier struct {
	log    *log.Logger
	url    string
	client *http.Client
}

func NewWebhookNotifier(logger *log.Logger, url string) *WebhookNotifier {
	return &WebhookNotifier{
		log: logger,
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *WebhookNotifier) NotifyNewMessage(tenantId, roomId string, sender types.Sender, preview string, recipients []string) {
	n.dispatch(pushRequest{
		Kind:       "new-message",
		TenantId:   tenantId,
		RoomId:     roomId,
		Sender:     sender,
		Preview:    preview,
		Recipients: recipients,
	})
}

func (n *WebhookNotifier) NotifyMention(tenantId, roomId string, sender types.Sender, preview string, mentioned []string) {
	n.dispatch(pushRequest{
		Kind:       "mention",
		TenantId:   tenantId,
		RoomId:     roomId,
		Sender:     sender,
		Preview:    preview,
		Recipients: mentioned,
	})
}

func (n *WebhookNotifier) dispatch(req pushRequest) {
	if n.url == "" {
		return
	}

	go func() {
		body, err := json.Marshal(req)
		if err != nil {
			n.log.Printf("push: marshal: %v", err)
			return
		}

		resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
		if err != nil {
			n.log.Printf("push: %s for tenant %q: %v", req.Kind, req.TenantId, err)
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			n.log.Printf("push: %s for tenant %q: unexpected status %d", req.Kind, req.TenantId, resp.StatusCode)
		}
	}()
}

// NopNotifier drops all notifications. Used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) NotifyNewMessage(string, string, types.Sender, string, []string) {}
func (NopNotifier) NotifyMention(string, string, types.Sender, string, []string)    {}
