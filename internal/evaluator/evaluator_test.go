package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"onsite-tracker-backend/internal/geo"
	"onsite-tracker-backend/internal/model"
)

var (
	officeCenter = geo.Point{Latitude: 40.4168, Longitude: -3.7038}
	siteCenter   = geo.Point{Latitude: 40.5000, Longitude: -3.7038}
)

func testRegions() []model.Region {
	return []model.Region{
		{ID: 1, Name: "Office", Latitude: officeCenter.Latitude, Longitude: officeCenter.Longitude, Radius: 50, Active: true},
		{ID: 2, Name: "Site", Latitude: siteCenter.Latitude, Longitude: siteCenter.Longitude, Radius: 50, Active: true},
	}
}

func at(p geo.Point) geo.Position {
	return geo.Position{Point: p, Accuracy: 10, Timestamp: time.Now()}
}

// settle waits out the evaluator's cooldown between sequential evaluations.
func settle() {
	time.Sleep(20 * time.Millisecond)
}

func TestEvaluatePosition_EnterExitCycle(t *testing.T) {
	e := New(time.Millisecond, 100)
	regions := testRegions()

	// Outside everything: no transition.
	far := at(geo.Point{Latitude: 41.0, Longitude: -3.7038})
	assert.Equal(t, None, e.EvaluatePosition(far, regions).Kind)
	settle()

	// Moving into the office fires exactly one enter.
	tr := e.EvaluatePosition(at(officeCenter), regions)
	assert.Equal(t, Enter, tr.Kind)
	assert.Equal(t, int64(1), tr.RegionID)
	assert.Equal(t, "Office", tr.RegionName)
	settle()

	// Staying put is not a new transition.
	assert.Equal(t, None, e.EvaluatePosition(at(officeCenter), regions).Kind)
	settle()

	// Leaving fires one exit carrying the region that was left.
	tr = e.EvaluatePosition(far, regions)
	assert.Equal(t, Exit, tr.Kind)
	assert.Equal(t, int64(1), tr.RegionID)
	settle()

	// Already outside: leaving again does nothing.
	assert.Equal(t, None, e.EvaluatePosition(far, regions).Kind)
	assert.Zero(t, e.CurrentRegionID())
}

func TestEvaluatePosition_DiscardsInaccurateSamples(t *testing.T) {
	e := New(time.Millisecond, 100)

	pos := at(officeCenter)
	pos.Accuracy = 250
	assert.Equal(t, None, e.EvaluatePosition(pos, testRegions()).Kind)
	assert.Zero(t, e.CurrentRegionID(), "a discarded sample must not change containment")
}

func TestEvaluatePosition_CooldownDropsBurst(t *testing.T) {
	e := New(time.Minute, 100)
	regions := testRegions()

	first := e.EvaluatePosition(at(officeCenter), regions)
	assert.Equal(t, Enter, first.Kind)

	// A second report of the same crossing inside the cooldown window is
	// dropped, not collapsed into a duplicate transition.
	far := at(geo.Point{Latitude: 41.0, Longitude: -3.7038})
	assert.Equal(t, None, e.EvaluatePosition(far, regions).Kind)
	assert.Equal(t, int64(1), e.CurrentRegionID(), "dropped samples must not mutate state")
}

func TestEvaluatePosition_MultiContainmentPicksFirst(t *testing.T) {
	e := New(time.Millisecond, 100)

	// Two regions stacked on the same center simulate a stale overlapping set.
	overlapping := []model.Region{
		{ID: 7, Name: "First", Latitude: officeCenter.Latitude, Longitude: officeCenter.Longitude, Radius: 100, Active: true},
		{ID: 8, Name: "Second", Latitude: officeCenter.Latitude, Longitude: officeCenter.Longitude, Radius: 100, Active: true},
	}

	tr := e.EvaluatePosition(at(officeCenter), overlapping)
	assert.Equal(t, Enter, tr.Kind)
	assert.Equal(t, int64(7), tr.RegionID)
}

func TestEvaluateSignal(t *testing.T) {
	e := New(time.Millisecond, 100)
	office := testRegions()[0]
	site := testRegions()[1]

	tr := e.EvaluateSignal(SignalEnter, office)
	assert.Equal(t, Enter, tr.Kind)
	assert.Equal(t, int64(1), tr.RegionID)
	settle()

	// Repeated enter for the same region collapses.
	assert.Equal(t, None, e.EvaluateSignal(SignalEnter, office).Kind)
	settle()

	// Exit for a region that is not current is ignored.
	assert.Equal(t, None, e.EvaluateSignal(SignalExit, site).Kind)
	assert.Equal(t, int64(1), e.CurrentRegionID())
	settle()

	tr = e.EvaluateSignal(SignalExit, office)
	assert.Equal(t, Exit, tr.Kind)
	assert.Zero(t, e.CurrentRegionID())
}

func TestMixedProducers_ShareContainment(t *testing.T) {
	e := New(time.Millisecond, 100)
	regions := testRegions()

	// The poll path establishes containment.
	assert.Equal(t, Enter, e.EvaluatePosition(at(officeCenter), regions).Kind)
	settle()

	// The OS callback reporting the same entry collapses against it.
	assert.Equal(t, None, e.EvaluateSignal(SignalEnter, regions[0]).Kind)
	settle()

	// And the callback's exit clears state the poll path then agrees with.
	assert.Equal(t, Exit, e.EvaluateSignal(SignalExit, regions[0]).Kind)
	settle()
	far := at(geo.Point{Latitude: 41.0, Longitude: -3.7038})
	assert.Equal(t, None, e.EvaluatePosition(far, regions).Kind)
}
