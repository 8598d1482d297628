package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vibez-client/internal/gateway"
	"vibez-client/internal/mocks"
	"vibez-client/internal/models"
)

func newTestNotifier(t *testing.T, initial []models.Notification, unread int64) (*Notifier, *mocks.NotificationAPIMock, *mocks.BusMock) {
	t.Helper()
	api := new(mocks.NotificationAPIMock)
	bus := new(mocks.BusMock)
	bus.On("Subscribe", DestNotifications).Return(nil).Once()
	api.On("Notifications", mock.Anything).Return(initial, nil).Once()
	api.On("UnreadNotificationCount", mock.Anything).Return(unread, nil).Once()

	n := NewNotifier(api, bus, nil, zerolog.Nop())
	require.NoError(t, n.Start(context.Background()))
	return n, api, bus
}

func deliver(t *testing.T, bus *mocks.BusMock, item models.Notification) {
	t.Helper()
	body, err := json.Marshal(item)
	require.NoError(t, err)
	bus.Deliver(DestNotifications, body)
}

func TestStartLoadsInitialState(t *testing.T) {
	initial := []models.Notification{
		{ID: 2, Title: "New follower", Read: false},
		{ID: 1, Title: "Reel liked", Read: true},
	}
	n, _, _ := newTestNotifier(t, initial, 1)

	assert.Len(t, n.Notifications(), 2)
	assert.Equal(t, int64(1), n.Unread())
}

func TestArrivalPrependsAndToasts(t *testing.T) {
	n, _, bus := newTestNotifier(t, nil, 0)

	item := models.Notification{ID: 10, Title: "New comment"}
	deliver(t, bus, item)

	list := n.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, int64(10), list[0].ID)
	assert.Equal(t, int64(1), n.Unread())

	toast, ok := n.CurrentToast()
	require.True(t, ok)
	assert.Equal(t, int64(10), toast.ID)

	select {
	case streamed := <-n.Toasts():
		assert.Equal(t, int64(10), streamed.ID)
	case <-time.After(time.Second):
		t.Fatal("no toast on the stream")
	}
}

func TestArrivalDeduplicatedByID(t *testing.T) {
	n, _, bus := newTestNotifier(t, nil, 0)

	item := models.Notification{ID: 10, Title: "New comment"}
	deliver(t, bus, item)
	deliver(t, bus, item)

	assert.Len(t, n.Notifications(), 1)
	assert.Equal(t, int64(1), n.Unread())
}

func TestListBounded(t *testing.T) {
	n, _, bus := newTestNotifier(t, nil, 0)

	for i := 0; i < maxRetained+20; i++ {
		deliver(t, bus, models.Notification{ID: int64(i + 1), Title: fmt.Sprintf("n%d", i)})
	}

	list := n.Notifications()
	require.Len(t, list, maxRetained)
	// Newest stays at the front, the oldest entries fall off.
	assert.Equal(t, int64(maxRetained+20), list[0].ID)
}

func TestNewArrivalSupersedesToast(t *testing.T) {
	n, _, bus := newTestNotifier(t, nil, 0)

	deliver(t, bus, models.Notification{ID: 1, Title: "first"})
	deliver(t, bus, models.Notification{ID: 2, Title: "second"})

	toast, ok := n.CurrentToast()
	require.True(t, ok)
	assert.Equal(t, int64(2), toast.ID)
}

func TestDismissToast(t *testing.T) {
	n, _, bus := newTestNotifier(t, nil, 0)

	deliver(t, bus, models.Notification{ID: 1, Title: "first"})
	n.DismissToast()
	_, ok := n.CurrentToast()
	assert.False(t, ok)
}

func TestMarkAllReadOptimistic(t *testing.T) {
	initial := []models.Notification{
		{ID: 2, Read: false},
		{ID: 1, Read: false},
	}
	n, api, _ := newTestNotifier(t, initial, 2)

	api.On("MarkAllNotificationsRead", mock.Anything).Return(nil).Once()
	require.NoError(t, n.MarkAllRead(context.Background()))

	assert.Equal(t, int64(0), n.Unread())
	for _, item := range n.Notifications() {
		assert.True(t, item.Read)
	}
	api.AssertExpectations(t)
}

func TestMarkAllReadRevertsOnFailure(t *testing.T) {
	initial := []models.Notification{
		{ID: 2, Read: false},
		{ID: 1, Read: true},
	}
	n, api, _ := newTestNotifier(t, initial, 1)

	apiErr := &gateway.APIError{Status: http.StatusServiceUnavailable, Kind: gateway.KindTransient}
	api.On("MarkAllNotificationsRead", mock.Anything).Return(apiErr).Once()

	err := n.MarkAllRead(context.Background())
	require.Error(t, err)

	assert.Equal(t, int64(1), n.Unread(), "unread must revert after failure")
	list := n.Notifications()
	assert.False(t, list[0].Read)
	assert.True(t, list[1].Read)
}

func TestMarkReadSingle(t *testing.T) {
	initial := []models.Notification{{ID: 7, Read: false}}
	n, api, _ := newTestNotifier(t, initial, 1)

	api.On("MarkNotificationRead", mock.Anything, int64(7)).Return(nil).Once()
	require.NoError(t, n.MarkRead(context.Background(), 7))
	assert.Equal(t, int64(0), n.Unread())
	assert.True(t, n.Notifications()[0].Read)
}

func TestMarkReadRevertsOnFailure(t *testing.T) {
	initial := []models.Notification{{ID: 7, Read: false}}
	n, api, _ := newTestNotifier(t, initial, 1)

	apiErr := &gateway.APIError{Status: http.StatusBadGateway, Kind: gateway.KindTransient}
	api.On("MarkNotificationRead", mock.Anything, int64(7)).Return(apiErr).Once()

	require.Error(t, n.MarkRead(context.Background(), 7))
	assert.Equal(t, int64(1), n.Unread())
	assert.False(t, n.Notifications()[0].Read)
}

func TestMarkReadUnknownIsNoop(t *testing.T) {
	n, api, _ := newTestNotifier(t, nil, 0)

	require.NoError(t, n.MarkRead(context.Background(), 404))
	api.AssertNotCalled(t, "MarkNotificationRead", mock.Anything, mock.Anything)
}
