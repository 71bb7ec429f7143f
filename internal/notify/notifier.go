package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tuuziane/marketplace/internal/order"
)

// Expo caps a single publish request at 100 messages.
const maxBatchSize = 100

// maxConcurrentBatches bounds parallel publishes per dispatch.
const maxConcurrentBatches = 4

// PushMessage is the Expo push API message shape.
type PushMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

// pushTicket is the per-message receipt in the Expo publish response. The
// data array is ordered like the request batch.
type pushTicket struct {
	Status  string `json:"status"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

const ticketStatusError = "error"

// errDeviceNotRegistered marks a token the push service will never deliver
// to again; its registration should be dropped.
const errDeviceNotRegistered = "DeviceNotRegistered"

// IsPushToken format-checks an Expo push token before dispatch.
func IsPushToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]") && len(token) > len("ExponentPushToken[]")
}

// PushNotifier broadcasts new orders to registered rider devices via an
// Expo-compatible push endpoint. It implements order.Notifier and is
// best-effort throughout: callers treat a returned error as log-only.
type PushNotifier struct {
	devices  DeviceRepository
	client   *http.Client
	endpoint string
}

func NewPushNotifier(devices DeviceRepository, client *http.Client, endpoint string) *PushNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushNotifier{devices: devices, client: client, endpoint: endpoint}
}

// OrderCreated fans the order announcement out to every active, verified
// rider device with a well-formed token.
func (n *PushNotifier) OrderCreated(ctx context.Context, o *order.Order) error {
	if n.endpoint == "" {
		return nil
	}

	devices, err := n.devices.ListActiveVerified(ctx)
	if err != nil {
		return fmt.Errorf("notify: failed to list devices: %w", err)
	}

	messages := BuildMessages(devices, o)
	if len(messages) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(messages); start += maxBatchSize {
		end := min(start+maxBatchSize, len(messages))
		batch := messages[start:end]
		g.Go(func() error {
			return n.publish(ctx, batch)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("notify: push dispatch incomplete: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Int("recipients", len(messages)).Msg("notify: order broadcast to riders")
	return nil
}

// BuildMessages produces one push message per device with a valid token.
func BuildMessages(devices []Device, o *order.Order) []PushMessage {
	messages := make([]PushMessage, 0, len(devices))
	for _, d := range devices {
		if !IsPushToken(d.Token) {
			continue
		}
		messages = append(messages, PushMessage{
			To:    d.Token,
			Title: "New Order Available!",
			Body:  fmt.Sprintf("Order for TZS %.0f is waiting for a rider", o.TotalPrice),
			Data:  map[string]any{"order_id": o.ID.String()},
			Sound: "default",
		})
	}
	return messages
}

func (n *PushNotifier) publish(ctx context.Context, batch []PushMessage) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	n.pruneRejected(ctx, batch, resp.Body)
	return nil
}

// pruneRejected deactivates tokens the endpoint reports as unregistered so
// they are not dialed on the next dispatch. The whole pass is best-effort: a
// malformed receipt body just means no pruning this round.
func (n *PushNotifier) pruneRejected(ctx context.Context, batch []PushMessage, body io.Reader) {
	var receipt struct {
		Data []pushTicket `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&receipt); err != nil || len(receipt.Data) != len(batch) {
		return
	}

	for i, ticket := range receipt.Data {
		if ticket.Status != ticketStatusError || ticket.Details.Error != errDeviceNotRegistered {
			continue
		}
		token := batch[i].To
		if err := n.devices.Deactivate(ctx, token); err != nil {
			log.Warn().Err(err).Str("token", token).Msg("notify: failed to deactivate rejected token")
			continue
		}
		log.Info().Str("token", token).Msg("notify: deactivated unregistered device token")
	}
}
