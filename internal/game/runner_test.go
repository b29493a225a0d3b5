package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/couchparty/server/internal/protocol"
)

// fakeSim is a scripted simulation: it wins for winnerID after winAfter
// steps, or panics when told to.
type fakeSim struct {
	mu       sync.Mutex
	steps    int
	winAfter int
	winnerID string
	panicOn  bool
	inputs   map[string]InputState
	actions  []Action
	dropped  []string
}

func newFakeSim(winnerID string, winAfter int) *fakeSim {
	return &fakeSim{
		winnerID: winnerID,
		winAfter: winAfter,
		inputs:   make(map[string]InputState),
	}
}

func (f *fakeSim) Mode() string { return "fake" }

func (f *fakeSim) SetInput(id string, in InputState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[id] = in
}

func (f *fakeSim) Enqueue(id string, act Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, act)
}

func (f *fakeSim) DropPlayer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, id)
}

func (f *fakeSim) Step(dt float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn {
		panic("scripted failure")
	}
	f.steps++
}

func (f *fakeSim) Snapshot() Event {
	return Event{Name: "fake-state", Payload: map[string]any{}}
}

func (f *fakeSim) DrainEvents() []Event { return nil }

func (f *fakeSim) Winner() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.winAfter > 0 && f.steps >= f.winAfter {
		return f.winnerID, true
	}
	return "", false
}

// recorder captures broadcaster calls from the runner goroutine.
type recorder struct {
	mu        sync.Mutex
	events    []string
	snapshots int
	binaries  int
	aborted   string
}

func (r *recorder) BroadcastEvent(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) BroadcastSnapshot(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots++
}

func (r *recorder) BroadcastBinary(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binaries++
}

func (r *recorder) AbortRoom(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = reason
}

func (r *recorder) eventNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots
}

func (r *recorder) abortReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

func testMeta() map[string]PlayerMeta {
	return map[string]PlayerMeta{
		"p1": {ID: "p1", Name: "Alice", Number: 1},
		"p2": {ID: "p2", Name: "Bob", Number: 2},
	}
}

func fastConfig() RunnerConfig {
	return RunnerConfig{
		TickInterval:    time.Millisecond,
		SnapshotEvery:   1,
		TransitionDelay: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never reached")
}

func TestRunnerBroadcastsSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	r := NewRunner("fake", func() Simulation { return newFakeSim("", 0) },
		testMeta(), out, NewTournament(1), fastConfig(), nil)

	r.Start()
	waitFor(t, func() bool { return out.snapshotCount() >= 5 })
	r.Stop()
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	r := NewRunner("fake", func() Simulation { return newFakeSim("", 0) },
		testMeta(), out, NewTournament(1), fastConfig(), nil)

	r.Start()
	r.Stop()
	r.Stop()
}

func TestSingleRoundTournamentEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	done := make(chan struct{})
	r := NewRunner("fake", func() Simulation { return newFakeSim("p1", 3) },
		testMeta(), out, NewTournament(1), fastConfig(), func() { close(done) })

	r.Start()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tournament never completed")
	}

	names := out.eventNames()
	assert.Contains(t, names, protocol.EvtRoundEnded)
	assert.Contains(t, names, protocol.EvtTournamentEnded)
	// One round: no transition into a second one.
	assert.NotContains(t, names, protocol.EvtRoundStarting)
}

func TestMultiRoundTournamentRestartsSim(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	done := make(chan struct{})
	var mu sync.Mutex
	created := 0
	factory := func() Simulation {
		mu.Lock()
		created++
		mu.Unlock()
		return newFakeSim("p1", 3)
	}
	r := NewRunner("fake", factory, testMeta(), out, NewTournament(2),
		fastConfig(), func() { close(done) })

	r.Start()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tournament never completed")
	}

	mu.Lock()
	assert.Equal(t, 2, created)
	mu.Unlock()

	names := out.eventNames()
	roundsEnded := 0
	for _, n := range names {
		if n == protocol.EvtRoundEnded {
			roundsEnded++
		}
	}
	assert.Equal(t, 2, roundsEnded)
	assert.Contains(t, names, protocol.EvtRoundStarting)
	assert.Contains(t, names, protocol.EvtTournamentEnded)
}

func TestPanicAbortsRoom(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	sim := newFakeSim("", 0)
	sim.panicOn = true
	r := NewRunner("fake", func() Simulation { return sim },
		testMeta(), out, NewTournament(1), fastConfig(), nil)

	r.Start()
	waitFor(t, func() bool { return out.abortReason() != "" })
	assert.Equal(t, "internal", out.abortReason())
}

func TestPushInputNeverBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	r := NewRunner("fake", func() Simulation { return newFakeSim("", 0) },
		testMeta(), out, NewTournament(1), fastConfig(), nil)

	// Runner not started: the queue fills, old entries are discarded.
	for i := 0; i < inputQueueSize*3; i++ {
		r.PushInput("p1", InputState{Left: i%2 == 0})
	}

	r.Start()
	r.Stop()
}

func TestActionsCarrySequence(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	sim := newFakeSim("", 0)
	r := NewRunner("fake", func() Simulation { return sim },
		testMeta(), out, NewTournament(1), fastConfig(), nil)

	r.PushAction("p1", Action{Kind: ActionPunch})
	r.PushAction("p1", Action{Kind: ActionKick})

	r.Start()
	waitFor(t, func() bool {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		return len(sim.actions) == 2
	})
	r.Stop()

	sim.mu.Lock()
	defer sim.mu.Unlock()
	require.Len(t, sim.actions, 2)
	assert.Less(t, sim.actions[0].Seq, sim.actions[1].Seq)
	assert.Equal(t, ActionPunch, sim.actions[0].Kind)
}

func TestLeaveReachesSimBeforeStaleInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &recorder{}
	sim := newFakeSim("", 0)
	r := NewRunner("fake", func() Simulation { return sim },
		testMeta(), out, NewTournament(1), fastConfig(), nil)

	r.PushInput("p2", InputState{Jump: true})
	r.PushLeave("p2")

	r.Start()
	waitFor(t, func() bool {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		return len(sim.dropped) == 1
	})
	r.Stop()

	sim.mu.Lock()
	defer sim.mu.Unlock()
	assert.Equal(t, []string{"p2"}, sim.dropped)
}
