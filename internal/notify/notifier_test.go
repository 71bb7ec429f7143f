package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuuziane/marketplace/internal/notify"
	"github.com/tuuziane/marketplace/internal/order"
)

type mockDeviceRepository struct {
	mu          sync.Mutex
	listFunc    func(ctx context.Context) ([]notify.Device, error)
	deactivated []string
}

func (m *mockDeviceRepository) Upsert(ctx context.Context, token string, userID uuid.UUID) error {
	return nil
}

func (m *mockDeviceRepository) ListActiveVerified(ctx context.Context) ([]notify.Device, error) {
	return m.listFunc(ctx)
}

func (m *mockDeviceRepository) Deactivate(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivated = append(m.deactivated, token)
	return nil
}

func (m *mockDeviceRepository) deactivatedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deactivated...)
}

func TestIsPushToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[abc123]", true},
		{"ExponentPushToken[]", false},
		{"not-a-token", false},
		{"", false},
		{"ExponentPushToken[abc", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, notify.IsPushToken(tt.token), "token %q", tt.token)
	}
}

func TestBuildMessages_FiltersMalformedTokens(t *testing.T) {
	o := &order.Order{ID: uuid.Must(uuid.NewV4()), TotalPrice: 4000}
	devices := []notify.Device{
		{Token: "ExponentPushToken[good1]"},
		{Token: "garbage"},
		{Token: "ExponentPushToken[good2]"},
	}

	messages := notify.BuildMessages(devices, o)

	require.Len(t, messages, 2)
	assert.Equal(t, "ExponentPushToken[good1]", messages[0].To)
	assert.Equal(t, "ExponentPushToken[good2]", messages[1].To)
	assert.Equal(t, o.ID.String(), messages[0].Data["order_id"])
}

func TestPushNotifier_OrderCreated(t *testing.T) {
	var requests atomic.Int32
	var received []notify.PushMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var batch []notify.PushMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		received = append(received, batch...)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := &mockDeviceRepository{
		listFunc: func(ctx context.Context) ([]notify.Device, error) {
			return []notify.Device{
				{Token: "ExponentPushToken[one]"},
				{Token: "ExponentPushToken[two]"},
			}, nil
		},
	}

	notifier := notify.NewPushNotifier(repo, srv.Client(), srv.URL)
	o := &order.Order{ID: uuid.Must(uuid.NewV4()), TotalPrice: 1500}

	err := notifier.OrderCreated(context.Background(), o)

	assert.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())
	assert.Len(t, received, 2)
}

func TestPushNotifier_DeactivatesUnregisteredTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []notify.PushMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		require.Len(t, batch, 3)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"status":"ok"},
			{"status":"error","details":{"error":"DeviceNotRegistered"}},
			{"status":"error","details":{"error":"MessageRateExceeded"}}
		]}`))
	}))
	defer srv.Close()

	repo := &mockDeviceRepository{
		listFunc: func(ctx context.Context) ([]notify.Device, error) {
			return []notify.Device{
				{Token: "ExponentPushToken[alive]"},
				{Token: "ExponentPushToken[stale]"},
				{Token: "ExponentPushToken[throttled]"},
			}, nil
		},
	}

	notifier := notify.NewPushNotifier(repo, srv.Client(), srv.URL)

	err := notifier.OrderCreated(context.Background(), &order.Order{ID: uuid.Must(uuid.NewV4()), TotalPrice: 2500})
	require.NoError(t, err)

	// Only the token the endpoint will never deliver to again is dropped;
	// transient failures keep their registration.
	assert.Equal(t, []string{"ExponentPushToken[stale]"}, repo.deactivatedTokens())
}

func TestPushNotifier_EndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	repo := &mockDeviceRepository{
		listFunc: func(ctx context.Context) ([]notify.Device, error) {
			return []notify.Device{{Token: "ExponentPushToken[one]"}}, nil
		},
	}

	notifier := notify.NewPushNotifier(repo, srv.Client(), srv.URL)

	err := notifier.OrderCreated(context.Background(), &order.Order{ID: uuid.Must(uuid.NewV4())})
	assert.Error(t, err)
}

func TestPushNotifier_NoDevices(t *testing.T) {
	repo := &mockDeviceRepository{
		listFunc: func(ctx context.Context) ([]notify.Device, error) {
			return []notify.Device{}, nil
		},
	}

	notifier := notify.NewPushNotifier(repo, nil, "http://push.invalid")

	err := notifier.OrderCreated(context.Background(), &order.Order{ID: uuid.Must(uuid.NewV4())})
	assert.NoError(t, err)
}
