package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"onsite-tracker-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// payload is the JSON body of every push. The Tag lets the client replace
// or dismiss a previously shown prompt, which is how prompt cancellation
// works: a "cancel" push with the same tag.
type payload struct {
	Type         string   `json:"type"`
	Tag          string   `json:"tag,omitempty"`
	RegionName   string   `json:"regionName,omitempty"`
	Actions      []string `json:"actions,omitempty"`
	DelayMinutes int      `json:"delayMinutes,omitempty"`
}

// Dispatcher broadcasts prompts to every registered push subscription
// through a pool of workers. It implements the coordinator's Notifier.
type Dispatcher struct {
	size    int
	jobs    chan []byte
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
	seq     atomic.Uint64
}

// NewDispatcher creates a dispatcher with the given worker pool size.
func NewDispatcher(size int, db *gorm.DB, webpushOptions *webpush.Options) *Dispatcher {
	return &Dispatcher{
		size:    size,
		jobs:    make(chan []byte, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the push sender, used by tests.
func (d *Dispatcher) SetSender(s Sender) {
	d.sender = s
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case body := <-d.jobs:
			d.broadcast(ctx, body)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// ShowEnterPrompt pushes the "you arrived, start working?" choice.
func (d *Dispatcher) ShowEnterPrompt(regionName string) (string, error) {
	tag := d.nextTag("enter")
	return tag, d.dispatch(payload{
		Type:       "enter_prompt",
		Tag:        tag,
		RegionName: regionName,
		Actions:    []string{"confirm", "skip_today", "defer", "dismiss"},
	})
}

// ShowExitPrompt pushes the "you left, stop the timer?" choice.
func (d *Dispatcher) ShowExitPrompt(regionName string) (string, error) {
	tag := d.nextTag("exit")
	return tag, d.dispatch(payload{
		Type:       "exit_prompt",
		Tag:        tag,
		RegionName: regionName,
		Actions:    []string{"confirm", "backdate_1", "backdate_2", "pause", "continue"},
	})
}

// Cancel pushes a dismissal for a previously shown prompt.
func (d *Dispatcher) Cancel(handle string) {
	if handle == "" {
		return
	}
	if err := d.dispatch(payload{Type: "cancel", Tag: handle}); err != nil {
		log.Printf("failed to dispatch cancel for %s: %v", handle, err)
	}
}

// ScheduleDeferred pushes a delayed-start reminder after the given delay.
// The schedule lives in this process only; a restart forgets it.
func (d *Dispatcher) ScheduleDeferred(regionName string, delay time.Duration) (string, error) {
	tag := d.nextTag("deferred")
	time.AfterFunc(delay, func() {
		err := d.dispatch(payload{
			Type:         "deferred_start",
			Tag:          tag,
			RegionName:   regionName,
			DelayMinutes: int(delay.Minutes()),
		})
		if err != nil {
			log.Printf("failed to dispatch deferred start for %q: %v", regionName, err)
		}
	})
	return tag, nil
}

// NotifyAutoStart announces that a session auto-started on timeout.
func (d *Dispatcher) NotifyAutoStart(regionName string) {
	if err := d.dispatch(payload{Type: "auto_start", RegionName: regionName}); err != nil {
		log.Printf("failed to dispatch auto-start notice for %q: %v", regionName, err)
	}
}

// NotifyAutoStop announces that a session auto-stopped on timeout.
func (d *Dispatcher) NotifyAutoStop(regionName string) {
	if err := d.dispatch(payload{Type: "auto_stop", RegionName: regionName}); err != nil {
		log.Printf("failed to dispatch auto-stop notice for %q: %v", regionName, err)
	}
}

func (d *Dispatcher) nextTag(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, d.seq.Add(1))
}

// dispatch enqueues one broadcast without blocking the caller.
func (d *Dispatcher) dispatch(p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	select {
	case d.jobs <- body:
		return nil
	default:
		return fmt.Errorf("notification queue full, dropping %s", p.Type)
	}
}

// Jobs returns the jobs channel for testing.
func (d *Dispatcher) Jobs() chan []byte {
	return d.jobs
}

// broadcast sends one payload to every subscription.
func (d *Dispatcher) broadcast(ctx context.Context, body []byte) {
	var subscriptions []model.PushSubscription
	if err := d.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("error fetching push subscriptions: %v", err)
		return
	}
	for _, sub := range subscriptions {
		d.send(ctx, sub, body)
	}
}

// send delivers a single web push notification.
func (d *Dispatcher) send(ctx context.Context, sub model.PushSubscription, body []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(body, wpSub, d.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription for endpoint %s is expired, deleting", sub.Endpoint)
		if err := d.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
