// Package coordinator reconciles geofence transitions into user-confirmable
// session changes. Raw signals from the two producers (foreground poll and
// OS callback) arrive on an event queue, get collapsed into transitions by
// the evaluator, and become pending entry/exit proposals with a countdown.
// A proposal resolves exactly once: by its timer, by a user action, or by a
// contradicting signal that cancels it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"onsite-tracker-backend/internal/evaluator"
	"onsite-tracker-backend/internal/geo"
	"onsite-tracker-backend/internal/ledger"
	"onsite-tracker-backend/internal/model"
)

// Ledger is the session authority the coordinator mutates through.
type Ledger interface {
	ActiveSession(ctx context.Context) (*model.Session, error)
	Start(ctx context.Context, regionID int64, regionName string, pos *geo.Position, detectedAt time.Time) (*model.Session, error)
	Stop(ctx context.Context, regionID int64, pos *geo.Position) (*model.Session, error)
	StopWithAdjustment(ctx context.Context, regionID int64, offsetMinutes int, pos *geo.Position) (*model.Session, error)
	Pause(ctx context.Context) (*model.Session, error)
	Resume(ctx context.Context) (*model.Session, error)
}

// Notifier dispatches prompts to the user. Calls are fire-and-forget; the
// coordinator never waits on delivery.
type Notifier interface {
	ShowEnterPrompt(regionName string) (string, error)
	ShowExitPrompt(regionName string) (string, error)
	Cancel(handle string)
	ScheduleDeferred(regionName string, delay time.Duration) (string, error)
	NotifyAutoStart(regionName string)
	NotifyAutoStop(regionName string)
}

// RegionSource resolves the monitored region set for evaluation.
type RegionSource interface {
	ActiveRegions(ctx context.Context) ([]model.Region, error)
	RegionByID(ctx context.Context, id int64) (*model.Region, error)
}

// Config holds the coordinator's timing options.
type Config struct {
	AutoActionTimeout time.Duration
	EntryDelay        time.Duration
	ExitBackdate1     time.Duration
	ExitBackdate2     time.Duration

	// Work-hours window in the local timezone; transitions into a region
	// outside the window are ignored unless AllowOutsideHours is set.
	Location          *time.Location
	WorkHoursStart    string
	WorkHoursEnd      string
	AllowOutsideHours bool
}

// EventType classifies inbound queue events.
type EventType string

const (
	// EventRawPosition is a position sample from the polling producer.
	EventRawPosition EventType = "raw_position"
	// EventEnter is an OS geofence callback reporting region entry.
	EventEnter EventType = "enter"
	// EventExit is an OS geofence callback reporting region exit.
	EventExit EventType = "exit"
)

// Event is one item on the coordinator's inbound queue.
type Event struct {
	Type     EventType
	RegionID int64
	Position *geo.Position
}

var (
	// ErrNoPendingEntry is returned when resolving a non-existent entry slot.
	ErrNoPendingEntry = errors.New("no pending entry")
	// ErrNoPendingExit is returned when resolving a non-existent exit slot.
	ErrNoPendingExit = errors.New("no pending exit")
)

// pending is one proposal slot. Timer callbacks compare slot identity
// before resolving, so a cancelled or superseded timer firing late is a
// no-op.
type pending struct {
	regionID   int64
	regionName string
	position   *geo.Position
	detected   time.Time
	deadline   time.Time
	handle     string
	timer      *time.Timer
	dismissed  bool
}

// Coordinator is the singleton pending-action state machine.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	ledger   Ledger
	notifier Notifier
	regions  RegionSource
	eval     *evaluator.Evaluator

	events       chan Event
	pendingEntry *pending
	pendingExit  *pending
	skipped      map[int64]struct{}

	workStart int // minutes since local midnight, -1 when unset
	workEnd   int
}

// New creates a coordinator. The skip list starts empty (an app restart
// clears it by construction).
func New(cfg Config, ledger Ledger, notifier Notifier, regions RegionSource, eval *evaluator.Evaluator) *Coordinator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Coordinator{
		cfg:       cfg,
		ledger:    ledger,
		notifier:  notifier,
		regions:   regions,
		eval:      eval,
		events:    make(chan Event, 64),
		skipped:   make(map[int64]struct{}),
		workStart: parseClock(cfg.WorkHoursStart),
		workEnd:   parseClock(cfg.WorkHoursEnd),
	}
}

// Push enqueues an event without blocking. A full queue drops the event:
// the producers repeat themselves and the evaluator absorbs duplicates.
func (c *Coordinator) Push(evt Event) {
	select {
	case c.events <- evt:
	default:
		log.Printf("event queue full, dropping %s event", evt.Type)
	}
}

// Run drains the event queue until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	log.Println("coordinator started")
	for {
		select {
		case <-ctx.Done():
			log.Println("coordinator shutting down")
			return
		case evt := <-c.events:
			c.dispatch(ctx, evt)
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, evt Event) {
	switch evt.Type {
	case EventRawPosition:
		if evt.Position == nil {
			log.Println("raw position event without a position, dropping")
			return
		}
		regions, err := c.regions.ActiveRegions(ctx)
		if err != nil {
			log.Printf("failed to load regions for evaluation: %v", err)
			return
		}
		c.handleTransition(ctx, c.eval.EvaluatePosition(*evt.Position, regions))

	case EventEnter, EventExit:
		region, err := c.regions.RegionByID(ctx, evt.RegionID)
		if err != nil {
			log.Printf("failed to resolve region %d for %s event: %v", evt.RegionID, evt.Type, err)
			return
		}
		if region == nil || !region.Active {
			log.Printf("%s event for unknown or inactive region %d, dropping", evt.Type, evt.RegionID)
			return
		}
		kind := evaluator.SignalEnter
		if evt.Type == EventExit {
			kind = evaluator.SignalExit
		}
		t := c.eval.EvaluateSignal(kind, *region)
		t.Position = evt.Position
		c.handleTransition(ctx, t)
	}
}

func (c *Coordinator) handleTransition(ctx context.Context, t evaluator.Transition) {
	switch t.Kind {
	case evaluator.Enter:
		c.handleEnter(ctx, t)
	case evaluator.Exit:
		c.handleExit(ctx, t)
	}
}

// handleEnter runs the entry guard chain and proposes a pending entry.
func (c *Coordinator) handleEnter(ctx context.Context, t evaluator.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.withinWorkHours(time.Now()) {
		log.Printf("enter %q outside work hours, ignoring", t.RegionName)
		return
	}

	active, err := c.ledger.ActiveSession(ctx)
	if err != nil {
		log.Printf("cannot check active session, dropping enter %q: %v", t.RegionName, err)
		return
	}

	// Only one place may accrue time; an entry elsewhere while a session
	// is active must not silently steal the timer.
	if active != nil && active.RegionID != t.RegionID {
		log.Printf("enter %q blocked: session %d active at %q", t.RegionName, active.ID, active.RegionName)
		return
	}

	// Quick return: the user came back before the exit countdown fired.
	// The pending exit is cancelled and the session simply continues.
	if c.pendingExit != nil && c.pendingExit.regionID == t.RegionID {
		c.cancelSlot(&c.pendingExit)
		log.Printf("cancelled pending exit for %q, user returned quickly", t.RegionName)
		return
	}

	if _, skipped := c.skipped[t.RegionID]; skipped {
		log.Printf("region %q skipped for today, ignoring enter", t.RegionName)
		return
	}

	if c.pendingEntry != nil && c.pendingEntry.regionID == t.RegionID {
		return
	}

	if active != nil && active.RegionID == t.RegionID {
		return
	}

	// A pending entry for a different region is superseded unconditionally.
	if c.pendingEntry != nil {
		log.Printf("superseding pending entry for %q with %q", c.pendingEntry.regionName, t.RegionName)
		c.cancelSlot(&c.pendingEntry)
	}

	handle, err := c.notifier.ShowEnterPrompt(t.RegionName)
	if err != nil {
		log.Printf("enter prompt for %q failed, countdown continues without it: %v", t.RegionName, err)
	}

	now := time.Now()
	p := &pending{
		regionID:   t.RegionID,
		regionName: t.RegionName,
		position:   t.Position,
		detected:   now,
		deadline:   now.Add(c.cfg.AutoActionTimeout),
		handle:     handle,
	}
	p.timer = time.AfterFunc(c.cfg.AutoActionTimeout, func() { c.entryTimeout(p) })
	c.pendingEntry = p
	log.Printf("pending entry for %q, auto-start in %s", t.RegionName, c.cfg.AutoActionTimeout)
}

// entryTimeout auto-starts a session when the countdown fires unanswered.
func (c *Coordinator) entryTimeout(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingEntry != p {
		return
	}
	c.pendingEntry = nil
	c.notifier.Cancel(p.handle)

	ctx := context.Background()

	// Re-verify: another session may have become active during the wait.
	active, err := c.ledger.ActiveSession(ctx)
	if err != nil {
		log.Printf("auto-start for %q aborted, cannot check active session: %v", p.regionName, err)
		return
	}
	if active != nil {
		log.Printf("auto-start for %q cancelled, session %d became active", p.regionName, active.ID)
		return
	}

	// The session starts at the moment the entry was detected, not at the
	// moment the countdown resolved.
	if _, err := c.ledger.Start(ctx, p.regionID, p.regionName, p.position, p.detected); err != nil {
		log.Printf("auto-start for %q rejected: %v", p.regionName, err)
		return
	}
	c.notifier.NotifyAutoStart(p.regionName)
}

// handleExit runs the exit guard chain and proposes a pending exit.
func (c *Coordinator) handleExit(ctx context.Context, t evaluator.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The user left before responding to the entry prompt.
	if c.pendingEntry != nil && c.pendingEntry.regionID == t.RegionID {
		c.cancelSlot(&c.pendingEntry)
		log.Printf("cancelled pending entry for %q, user left before responding", t.RegionName)
		return
	}

	if c.pendingExit != nil && c.pendingExit.regionID == t.RegionID {
		return
	}

	active, err := c.ledger.ActiveSession(ctx)
	if err != nil {
		log.Printf("cannot check active session, dropping exit %q: %v", t.RegionName, err)
		return
	}
	if active == nil || active.RegionID != t.RegionID {
		log.Printf("no active session at %q, ignoring exit", t.RegionName)
		return
	}

	handle, err := c.notifier.ShowExitPrompt(t.RegionName)
	if err != nil {
		log.Printf("exit prompt for %q failed, countdown continues without it: %v", t.RegionName, err)
	}

	now := time.Now()
	p := &pending{
		regionID:   t.RegionID,
		regionName: t.RegionName,
		position:   t.Position,
		detected:   now,
		deadline:   now.Add(c.cfg.AutoActionTimeout),
		handle:     handle,
	}
	p.timer = time.AfterFunc(c.cfg.AutoActionTimeout, func() { c.exitTimeout(p) })
	c.pendingExit = p
	log.Printf("pending exit for %q, auto-stop in %s", t.RegionName, c.cfg.AutoActionTimeout)
}

// exitTimeout finalizes the session when the countdown fires unanswered.
// Silence means "I actually left": stopping frees the active-session slot
// so work can start elsewhere, which a pause would keep blocked.
func (c *Coordinator) exitTimeout(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingExit != p {
		return
	}
	c.pendingExit = nil
	c.notifier.Cancel(p.handle)

	if _, err := c.ledger.Stop(context.Background(), p.regionID, p.position); err != nil {
		log.Printf("auto-stop for %q failed: %v", p.regionName, err)
		return
	}
	c.notifier.NotifyAutoStop(p.regionName)
}

// EntryAction resolves a pending entry.
type EntryAction string

const (
	// EntryConfirm starts the session immediately.
	EntryConfirm EntryAction = "confirm"
	// EntrySkipToday dismisses the region until local midnight.
	EntrySkipToday EntryAction = "skip_today"
	// EntryDefer schedules a delayed-start reminder and clears the slot.
	EntryDefer EntryAction = "defer"
	// EntryDismiss hides the prompt but keeps the countdown running.
	EntryDismiss EntryAction = "dismiss"
)

// ResolveEntry applies a user action to the pending entry slot.
// delayMinutes only applies to EntryDefer; zero uses the configured default.
func (c *Coordinator) ResolveEntry(ctx context.Context, action EntryAction, delayMinutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pendingEntry
	if p == nil {
		return ErrNoPendingEntry
	}

	switch action {
	case EntryConfirm:
		c.cancelSlot(&c.pendingEntry)
		if _, err := c.ledger.Start(ctx, p.regionID, p.regionName, p.position, p.detected); err != nil {
			return err
		}
		return nil

	case EntrySkipToday:
		c.skipped[p.regionID] = struct{}{}
		c.cancelSlot(&c.pendingEntry)
		log.Printf("region %q skipped for today", p.regionName)
		return nil

	case EntryDefer:
		delay := c.cfg.EntryDelay
		if delayMinutes > 0 {
			delay = time.Duration(delayMinutes) * time.Minute
		}
		c.cancelSlot(&c.pendingEntry)
		if _, err := c.notifier.ScheduleDeferred(p.regionName, delay); err != nil {
			log.Printf("failed to schedule deferred start for %q: %v", p.regionName, err)
		}
		log.Printf("entry for %q deferred by %s", p.regionName, delay)
		return nil

	case EntryDismiss:
		// Visibility toggle only: the countdown keeps running and will
		// still auto-resolve.
		p.dismissed = true
		c.notifier.Cancel(p.handle)
		return nil
	}
	return fmt.Errorf("unknown entry action %q", action)
}

// ExitAction resolves a pending exit.
type ExitAction string

const (
	// ExitConfirm stops the session now.
	ExitConfirm ExitAction = "confirm"
	// ExitBackdate1 stops the session backdated by the first configured offset.
	ExitBackdate1 ExitAction = "backdate_1"
	// ExitBackdate2 stops the session backdated by the second configured offset.
	ExitBackdate2 ExitAction = "backdate_2"
	// ExitPause pauses the session instead of finalizing it.
	ExitPause ExitAction = "pause"
	// ExitContinue keeps the session running outside the fence.
	ExitContinue ExitAction = "continue"
)

// ResolveExit applies a user action to the pending exit slot.
func (c *Coordinator) ResolveExit(ctx context.Context, action ExitAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pendingExit
	if p == nil {
		return ErrNoPendingExit
	}
	c.cancelSlot(&c.pendingExit)

	switch action {
	case ExitConfirm:
		_, err := c.ledger.Stop(ctx, p.regionID, p.position)
		return err

	case ExitBackdate1, ExitBackdate2:
		offset := c.cfg.ExitBackdate1
		if action == ExitBackdate2 {
			offset = c.cfg.ExitBackdate2
		}
		_, err := c.ledger.StopWithAdjustment(ctx, p.regionID, -int(offset.Minutes()), p.position)
		return err

	case ExitPause:
		_, err := c.ledger.Pause(ctx)
		return err

	case ExitContinue:
		log.Printf("user chose to keep tracking %q outside the fence", p.regionName)
		return nil
	}
	return fmt.Errorf("unknown exit action %q", action)
}

// PendingView is a read-only snapshot of a proposal slot.
type PendingView struct {
	Kind       string        `json:"kind"`
	RegionID   int64         `json:"regionId"`
	RegionName string        `json:"regionName"`
	Deadline   time.Time     `json:"deadline"`
	Dismissed  bool          `json:"dismissed"`
	Position   *geo.Position `json:"position,omitempty"`
}

// Pending returns snapshots of the pending entry and exit slots, either of
// which may be nil.
func (c *Coordinator) Pending() (entry, exit *PendingView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingEntry != nil {
		entry = c.pendingEntry.view("entry")
	}
	if c.pendingExit != nil {
		exit = c.pendingExit.view("exit")
	}
	return entry, exit
}

func (p *pending) view(kind string) *PendingView {
	return &PendingView{
		Kind:       kind,
		RegionID:   p.regionID,
		RegionName: p.regionName,
		Deadline:   p.deadline,
		Dismissed:  p.dismissed,
		Position:   p.position,
	}
}

// ResetSkippedToday clears the day-scoped skip list. Wired to a midnight
// cron job in main.
func (c *Coordinator) ResetSkippedToday() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped = make(map[int64]struct{})
	log.Println("skip list reset")
}

// cancelSlot stops a slot's timer, cancels its prompt, and clears it.
// Cancelling a timer that already fired is a no-op; the late callback sees
// the cleared slot and returns.
func (c *Coordinator) cancelSlot(slot **pending) {
	p := *slot
	if p == nil {
		return
	}
	p.timer.Stop()
	c.notifier.Cancel(p.handle)
	*slot = nil
}

func (c *Coordinator) withinWorkHours(now time.Time) bool {
	if c.cfg.AllowOutsideHours || c.workStart < 0 || c.workEnd < 0 {
		return true
	}
	local := now.In(c.cfg.Location)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= c.workStart && minutes < c.workEnd
}

// parseClock converts "HH:MM" to minutes since midnight, or -1.
func parseClock(s string) int {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return -1
	}
	return h*60 + m
}

// Rejection reports whether an error is an expected invariant rejection
// rather than a failure, so API handlers can map it to a conflict response.
func Rejection(err error) bool {
	var activeElsewhere *ledger.ActiveElsewhereError
	return errors.Is(err, ledger.ErrNoActiveSession) ||
		errors.Is(err, ledger.ErrNotPaused) ||
		errors.As(err, &activeElsewhere)
}
