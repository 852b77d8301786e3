// Package evaluator turns raw positions and OS geofence signals into
// enter/exit transitions relative to the last known containing region.
// Both producers (the foreground poll and the OS callback) funnel through
// the same containment diffing, so redundant reports of one physical
// crossing collapse into a single transition.
package evaluator

import (
	"log"
	"sync"
	"time"

	"onsite-tracker-backend/internal/geo"
	"onsite-tracker-backend/internal/model"
)

// TransitionKind classifies the outcome of an evaluation.
type TransitionKind string

const (
	// None means containment did not change.
	None TransitionKind = "none"
	// Enter means the position moved into a region.
	Enter TransitionKind = "enter"
	// Exit means the position left the previously containing region.
	Exit TransitionKind = "exit"
)

// Transition is the result of evaluating a position or signal.
type Transition struct {
	Kind       TransitionKind
	RegionID   int64
	RegionName string
	Position   *geo.Position
}

var none = Transition{Kind: None}

// SignalKind is the transition type reported by an OS geofence callback.
type SignalKind string

const (
	SignalEnter SignalKind = "enter"
	SignalExit  SignalKind = "exit"
)

// Evaluator tracks last known containment. It is safe for concurrent use;
// calls arriving while a previous evaluation is still inside its cooldown
// window are dropped.
type Evaluator struct {
	mu                sync.Mutex
	currentRegionID   int64
	currentRegionName string
	evaluating        bool

	cooldown    time.Duration
	minAccuracy float64
}

// New creates an evaluator. The cooldown keeps the re-entrancy guard held
// for a short window after each evaluation so near-simultaneous reports of
// the same crossing from the two producers do not double-fire. Positions
// with a reported accuracy worse than minAccuracy meters are discarded;
// pass 0 to accept everything.
func New(cooldown time.Duration, minAccuracy float64) *Evaluator {
	return &Evaluator{cooldown: cooldown, minAccuracy: minAccuracy}
}

// CurrentRegionID returns the id of the last known containing region, or 0.
func (e *Evaluator) CurrentRegionID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentRegionID
}

// EvaluatePosition computes which active region contains the position and
// emits the transition relative to the last known containment.
func (e *Evaluator) EvaluatePosition(pos geo.Position, regions []model.Region) Transition {
	if e.minAccuracy > 0 && pos.Accuracy > e.minAccuracy {
		log.Printf("discarding position sample with accuracy %.0fm (minimum %.0fm)", pos.Accuracy, e.minAccuracy)
		return none
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.acquire() {
		return none
	}

	var containing []model.Region
	for _, region := range regions {
		if region.Contains(pos.Point) {
			containing = append(containing, region)
		}
	}

	if len(containing) > 1 {
		// Structurally impossible while the registry's overlap invariant
		// holds; a stale region set can still get here.
		names := make([]string, len(containing))
		for i, r := range containing {
			names[i] = r.Name
		}
		log.Printf("anomaly: position contained by %d regions %v, picking first", len(containing), names)
	}

	if len(containing) > 0 {
		region := containing[0]
		if region.ID == e.currentRegionID {
			return none
		}
		e.currentRegionID = region.ID
		e.currentRegionName = region.Name
		return Transition{Kind: Enter, RegionID: region.ID, RegionName: region.Name, Position: &pos}
	}

	if e.currentRegionID != 0 {
		t := Transition{Kind: Exit, RegionID: e.currentRegionID, RegionName: e.currentRegionName, Position: &pos}
		e.currentRegionID = 0
		e.currentRegionName = ""
		return t
	}

	return none
}

// EvaluateSignal handles an OS-delivered enter/exit callback. The region is
// known directly, so no distance math runs, but the containment diffing is
// the same as the polling path.
func (e *Evaluator) EvaluateSignal(kind SignalKind, region model.Region) Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.acquire() {
		return none
	}

	switch kind {
	case SignalEnter:
		if region.ID == e.currentRegionID {
			return none
		}
		e.currentRegionID = region.ID
		e.currentRegionName = region.Name
		return Transition{Kind: Enter, RegionID: region.ID, RegionName: region.Name}
	case SignalExit:
		if region.ID != e.currentRegionID {
			return none
		}
		e.currentRegionID = 0
		e.currentRegionName = ""
		return Transition{Kind: Exit, RegionID: region.ID, RegionName: region.Name}
	}
	return none
}

// acquire takes the re-entrancy guard, scheduling its release after the
// cooldown window. Callers must hold e.mu.
func (e *Evaluator) acquire() bool {
	if e.evaluating {
		return false
	}
	e.evaluating = true
	time.AfterFunc(e.cooldown, func() {
		e.mu.Lock()
		e.evaluating = false
		e.mu.Unlock()
	})
	return true
}
