package game

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/couchparty/server/internal/logging"
	"github.com/couchparty/server/internal/metrics"
	"github.com/couchparty/server/internal/protocol"
)

const (
	inputQueueSize  = 128
	actionQueueSize = 256
	leaveQueueSize  = 16
)

type inputMsg struct {
	playerID string
	input    InputState
}

type actionMsg struct {
	playerID string
	action   Action
}

// RunnerConfig carries the loop timing parameters.
type RunnerConfig struct {
	TickInterval    time.Duration
	SnapshotEvery   int
	TransitionDelay time.Duration
}

// Runner drives one room's simulation at a fixed rate on a dedicated
// goroutine. All simulation state is touched only from that goroutine;
// inbound intent crosses over via bounded queues.
type Runner struct {
	mode       string
	factory    func() Simulation
	sim        Simulation
	meta       map[string]PlayerMeta
	out        Broadcaster
	tournament *Tournament
	cfg        RunnerConfig
	onComplete func()

	inputs  chan inputMsg
	actions chan actionMsg
	leaves  chan string

	actionSeq atomic.Uint64
	running   atomic.Bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewRunner builds a runner for one room. factory creates a fresh mode
// simulation; it is invoked once up front and again for each tournament
// round, preserving participant identities while resetting mode state.
func NewRunner(mode string, factory func() Simulation, meta map[string]PlayerMeta, out Broadcaster, tournament *Tournament, cfg RunnerConfig, onComplete func()) *Runner {
	if cfg.SnapshotEvery < 1 {
		cfg.SnapshotEvery = 1
	}
	return &Runner{
		mode:       mode,
		factory:    factory,
		sim:        factory(),
		meta:       meta,
		out:        out,
		tournament: tournament,
		cfg:        cfg,
		onComplete: onComplete,
		inputs:     make(chan inputMsg, inputQueueSize),
		actions:    make(chan actionMsg, actionQueueSize),
		leaves:     make(chan string, leaveQueueSize),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the loop goroutine. Subsequent calls are no-ops.
func (r *Runner) Start() {
	if r.running.Swap(true) {
		return
	}
	go r.loop()
}

// Stop cancels the loop at the next tick boundary and waits for it to
// exit. Safe to call multiple times.
func (r *Runner) Stop() {
	if !r.running.Swap(false) {
		return
	}
	close(r.stopChan)
	<-r.done
}

// PushInput hands a held-key vector to the loop. On overflow the oldest
// queued input is discarded: inputs are coalescable, the latest wins.
func (r *Runner) PushInput(playerID string, in InputState) {
	msg := inputMsg{playerID, in}
	for {
		select {
		case r.inputs <- msg:
			return
		default:
			select {
			case <-r.inputs:
				metrics.DroppedInputs.Inc()
			default:
			}
		}
	}
}

// PushAction hands a one-shot action to the loop. Actions are never
// coalesced; the queue is generously sized and overflow is logged.
func (r *Runner) PushAction(playerID string, act Action) {
	act.Seq = r.actionSeq.Add(1)
	select {
	case r.actions <- actionMsg{playerID, act}:
	default:
		logging.Warn(context.Background(), "action queue full, dropping one-shot",
			zap.String("playerId", playerID), zap.String("kind", string(act.Kind)))
	}
}

// PushLeave tells the loop a participant is gone for good.
func (r *Runner) PushLeave(playerID string) {
	select {
	case r.leaves <- playerID:
	default:
	}
}

func (r *Runner) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	dt := r.cfg.TickInterval.Seconds()
	transitionTicks := 0
	tick := 0

	for {
		select {
		case <-r.stopChan:
			r.drainInbox()
			return

		case <-ticker.C:
			tick++

			// Inputs are sampled exactly once per tick, before physics.
			r.drainInbox()

			if transitionTicks > 0 {
				transitionTicks--
				if transitionTicks == 0 {
					r.out.BroadcastEvent(protocol.EvtRoundStarting, protocol.RoundStarting{Round: r.tournament.CurrentRound})
					r.sim = r.factory()
				}
				continue
			}

			if !r.step(dt) {
				return
			}

			if tick%r.cfg.SnapshotEvery == 0 {
				snap := r.sim.Snapshot()
				r.out.BroadcastSnapshot(snap.Name, snap.Payload)
			}

			// Semantic events go out after the snapshot of their tick.
			for _, ev := range r.sim.DrainEvents() {
				metrics.SimEvents.WithLabelValues(r.mode, ev.Name).Inc()
				if ev.Binary != nil {
					r.out.BroadcastBinary(ev.Binary)
					continue
				}
				r.out.BroadcastEvent(ev.Name, ev.Payload)
			}

			if winnerID, over := r.sim.Winner(); over {
				if done := r.resolveRound(winnerID); done {
					return
				}
				transitionTicks = int(r.cfg.TransitionDelay / r.cfg.TickInterval)
				if transitionTicks < 1 {
					transitionTicks = 1
				}
			}
		}
	}
}

// step advances the simulation one tick, converting panics into a clean
// room teardown so other rooms are unaffected.
func (r *Runner) step(dt float64) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error(context.Background(), "simulation panicked, aborting room",
				zap.String("gameMode", r.mode),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			r.out.AbortRoom("internal")
			ok = false
		}
	}()

	start := time.Now()
	r.sim.Step(dt)
	metrics.TickDuration.WithLabelValues(r.mode).Observe(time.Since(start).Seconds())
	return true
}

// resolveRound records the round outcome with the tournament controller
// and reports whether the tournament is over.
func (r *Runner) resolveRound(winnerID string) bool {
	round := r.tournament.CurrentRound
	r.tournament.RecordRound(winnerID)

	r.out.BroadcastEvent(protocol.EvtRoundEnded, protocol.RoundEnded{
		CurrentRound:  round,
		RoundWinner:   r.nameOf(winnerID),
		RoundWinnerID: winnerID,
		PlayerScores:  r.scoresByName(),
	})

	if !r.tournament.Finished() {
		return false
	}

	champ := r.tournament.Champion()
	r.out.BroadcastEvent(protocol.EvtTournamentEnded, protocol.TournamentEnded{
		TournamentWinner:   r.nameOf(champ),
		TournamentWinnerID: champ,
		PlayerScores:       r.scoresByName(),
	})
	if r.onComplete != nil {
		r.onComplete()
	}
	return true
}

func (r *Runner) nameOf(playerID string) string {
	if m, ok := r.meta[playerID]; ok {
		return m.Name
	}
	return playerID
}

func (r *Runner) scoresByName() map[string]int {
	scores := make(map[string]int, len(r.meta))
	for id, m := range r.meta {
		scores[m.Name] = 0
		if n, ok := r.tournament.Scores()[id]; ok {
			scores[m.Name] = n
		}
	}
	return scores
}

// drainInbox applies every queued message. Order within a queue is FIFO;
// leaves apply first so a dropped player's stale intent is discarded.
func (r *Runner) drainInbox() {
	for {
		select {
		case pid := <-r.leaves:
			delete(r.meta, pid)
			r.sim.DropPlayer(pid)
		default:
			goto inputs
		}
	}
inputs:
	for {
		select {
		case msg := <-r.inputs:
			r.sim.SetInput(msg.playerID, msg.input)
		default:
			goto actions
		}
	}
actions:
	for {
		select {
		case msg := <-r.actions:
			r.sim.Enqueue(msg.playerID, msg.action)
		default:
			return
		}
	}
}
