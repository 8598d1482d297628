// Package notify keeps the in-app notification state: a bounded recent
// list, the unread badge and transient toasts for live arrivals.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"vibez-client/internal/gateway"
	"vibez-client/internal/models"
	"vibez-client/internal/observability"
	"vibez-client/internal/tasks"
	"vibez-client/internal/transport"
)

// DestNotifications is the per-user realtime queue for notifications.
const DestNotifications = "/user/queue/notifications"

// maxRetained bounds the in-memory list; older entries fall off.
const maxRetained = 100

// toastLifetime is how long a toast stays current before auto-dismissal.
const toastLifetime = 5 * time.Second

// Bus is the subscription half of the realtime transport.
type Bus interface {
	Subscribe(destination string, handler transport.MessageHandler) error
}

// Archive optionally persists notifications across runs.
type Archive interface {
	SaveNotification(ctx context.Context, n models.Notification) error
	RecentNotifications(ctx context.Context, limit int) ([]models.Notification, error)
}

// Notifier is the notification delivery client. Exactly one toast is
// emitted per live arrival, regardless of how the list mutates afterward.
type Notifier struct {
	api     gateway.NotificationAPI
	bus     Bus
	archive Archive
	logger  zerolog.Logger

	mu     sync.RWMutex
	list   []models.Notification
	unread int64
	toast  *models.Notification

	dismiss tasks.Debouncer
	toasts  chan models.Notification
}

// NewNotifier builds a notification client. archive may be nil.
func NewNotifier(api gateway.NotificationAPI, bus Bus, archive Archive, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:     api,
		bus:     bus,
		archive: archive,
		logger:  logger.With().Str("component", "notify").Logger(),
		dismiss: tasks.Debouncer{Delay: toastLifetime},
		toasts:  make(chan models.Notification, 16),
	}
}

// Start subscribes the notification queue and loads the initial list and
// unread count. Fetch failures are tolerated so the client can come up
// against cached state.
func (n *Notifier) Start(ctx context.Context) error {
	if err := n.bus.Subscribe(DestNotifications, n.onFrame); err != nil {
		return fmt.Errorf("subscribe %s: %w", DestNotifications, err)
	}

	n.warmFromArchive(ctx)
	if err := n.Refresh(ctx); err != nil {
		n.logger.Warn().Err(err).Msg("notification refresh failed, continuing with cached state")
	}
	return nil
}

func (n *Notifier) warmFromArchive(ctx context.Context) {
	if n.archive == nil {
		return
	}
	cached, err := n.archive.RecentNotifications(ctx, maxRetained)
	if err != nil {
		n.logger.Warn().Err(err).Msg("archive notification load failed")
		return
	}
	n.mu.Lock()
	n.list = cached
	n.recountLocked()
	n.mu.Unlock()
	n.publishUnread()
}

// Refresh replaces local state with the backend's list and unread count.
func (n *Notifier) Refresh(ctx context.Context) error {
	list, err := n.api.Notifications(ctx)
	if err != nil {
		return err
	}
	unread, err := n.api.UnreadNotificationCount(ctx)
	if err != nil {
		return err
	}
	if len(list) > maxRetained {
		list = list[:maxRetained]
	}
	n.mu.Lock()
	n.list = list
	n.unread = unread
	n.mu.Unlock()
	n.publishUnread()
	n.persist(ctx, list...)
	return nil
}

// Notifications returns a snapshot of the retained list, newest first.
func (n *Notifier) Notifications() []models.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]models.Notification, len(n.list))
	copy(out, n.list)
	return out
}

// Unread returns the current unread badge value.
func (n *Notifier) Unread() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.unread
}

// CurrentToast returns the live toast, if one has not been dismissed yet.
func (n *Notifier) CurrentToast() (models.Notification, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.toast == nil {
		return models.Notification{}, false
	}
	return *n.toast, true
}

// Toasts is a stream of live arrivals, one entry per notification. Slow
// consumers lose entries rather than stall the transport.
func (n *Notifier) Toasts() <-chan models.Notification {
	return n.toasts
}

// DismissToast clears the current toast immediately.
func (n *Notifier) DismissToast() {
	n.dismiss.Cancel()
	n.mu.Lock()
	n.toast = nil
	n.mu.Unlock()
}

// MarkAllRead flips every notification to read optimistically, then asks
// the backend to persist. On failure the previous state is restored.
func (n *Notifier) MarkAllRead(ctx context.Context) error {
	n.mu.Lock()
	prev := make([]models.Notification, len(n.list))
	copy(prev, n.list)
	prevUnread := n.unread
	for i := range n.list {
		n.list[i].Read = true
	}
	n.unread = 0
	n.mu.Unlock()
	n.publishUnread()

	if err := n.api.MarkAllNotificationsRead(ctx); err != nil {
		n.mu.Lock()
		n.list = prev
		n.unread = prevUnread
		n.mu.Unlock()
		n.publishUnread()
		return err
	}
	n.persist(ctx, n.Notifications()...)
	return nil
}

// MarkRead flips one notification to read optimistically, reverting on
// backend failure. Unknown ids and already-read entries are no-ops.
func (n *Notifier) MarkRead(ctx context.Context, id int64) error {
	n.mu.Lock()
	idx := -1
	for i := range n.list {
		if n.list[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || n.list[idx].Read {
		n.mu.Unlock()
		return nil
	}
	n.list[idx].Read = true
	if n.unread > 0 {
		n.unread--
	}
	marked := n.list[idx]
	n.mu.Unlock()
	n.publishUnread()

	if err := n.api.MarkNotificationRead(ctx, id); err != nil {
		n.mu.Lock()
		for i := range n.list {
			if n.list[i].ID == id {
				n.list[i].Read = false
				break
			}
		}
		n.unread++
		n.mu.Unlock()
		n.publishUnread()
		return err
	}
	n.persist(ctx, marked)
	return nil
}

// onFrame consumes one live notification from the queue. Runs on the
// transport read loop; must not block.
func (n *Notifier) onFrame(_ string, body []byte) {
	var incoming models.Notification
	if err := json.Unmarshal(body, &incoming); err != nil {
		n.logger.Warn().Err(err).Msg("dropping undecodable notification")
		return
	}

	n.mu.Lock()
	for _, existing := range n.list {
		if existing.ID == incoming.ID {
			n.mu.Unlock()
			return
		}
	}
	n.list = append([]models.Notification{incoming}, n.list...)
	if len(n.list) > maxRetained {
		n.list = n.list[:maxRetained]
	}
	if !incoming.Read {
		n.unread++
	}
	n.toast = &incoming
	n.mu.Unlock()
	n.publishUnread()

	// Each arrival supersedes the previous toast; the dismissal of an old
	// toast never clears a newer one.
	n.dismiss.Schedule(func() {
		n.mu.Lock()
		n.toast = nil
		n.mu.Unlock()
	})
	select {
	case n.toasts <- incoming:
	default:
		n.logger.Debug().Int64("id", incoming.ID).Msg("toast stream full, dropping")
	}

	n.persist(context.Background(), incoming)
}

func (n *Notifier) recountLocked() {
	var unread int64
	for _, item := range n.list {
		if !item.Read {
			unread++
		}
	}
	n.unread = unread
}

func (n *Notifier) persist(ctx context.Context, items ...models.Notification) {
	if n.archive == nil {
		return
	}
	for _, item := range items {
		if err := n.archive.SaveNotification(ctx, item); err != nil {
			n.logger.Warn().Err(err).Int64("id", item.ID).Msg("archive notification save failed")
		}
	}
}

func (n *Notifier) publishUnread() {
	n.mu.RLock()
	unread := n.unread
	n.mu.RUnlock()
	observability.SetNotificationsUnread(unread)
}
