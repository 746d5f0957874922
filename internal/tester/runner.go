package tester

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/onekgame/onek/internal/client"
	"github.com/onekgame/onek/internal/codec"
	"github.com/onekgame/onek/internal/schema"
)

// Outcome is everything a scenario run produced.
type Outcome struct {
	// Final is the world after the last intent settled.
	Final schema.World
	// Deltas are the committed deltas from the scenario's reset
	// onward, in version order.
	Deltas []schema.Delta
	// Results are the per-intent answers, reset excluded.
	Results []schema.IntentResult
}

// Runner replays scenarios against a live authority and logic pair.
type Runner struct {
	authorityAddress string
	logicAddress     string
}

// NewRunner points a runner at the pair under test.
func NewRunner(authorityAddress, logicAddress string) *Runner {
	return &Runner{authorityAddress: authorityAddress, logicAddress: logicAddress}
}

// Run resets to the scenario's map, replays its intents in order, and
// captures the outcome once the mirror has settled.
func (r *Runner) Run(ctx context.Context, sc Scenario) (Outcome, error) {
	var mu sync.Mutex
	var captured []schema.Delta
	mirror := client.New(r.authorityAddress, "tester", client.WithOnDelta(func(d schema.Delta, _ schema.World) {
		mu.Lock()
		captured = append(captured, d)
		mu.Unlock()
	}))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	mirrorDone := make(chan struct{})
	go func() {
		defer close(mirrorDone)
		_ = mirror.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-mirrorDone
	}()
	if err := mirror.WaitSynced(ctx); err != nil {
		return Outcome{}, fmt.Errorf("sync mirror: %w", err)
	}

	intents, err := client.DialIntents(ctx, r.logicAddress, "tester")
	if err != nil {
		return Outcome{}, err
	}
	defer intents.Close()

	reset, err := intents.Send(ctx, schema.Intent{Kind: schema.IntentReset, Map: sc.Map, Reason: sc.Name})
	if err != nil {
		return Outcome{}, fmt.Errorf("reset: %w", err)
	}
	if reset.Version == 0 {
		return Outcome{}, fmt.Errorf("reset for %q did not commit", sc.Name)
	}

	outcome := Outcome{}
	last := reset.Version
	for i, intent := range sc.Intents {
		result, err := intents.Send(ctx, intent)
		if err != nil {
			return Outcome{}, fmt.Errorf("intent %d (%s): %w", i, intent.Kind, err)
		}
		outcome.Results = append(outcome.Results, result)
		if result.Version > last {
			last = result.Version
		}
	}

	if err := mirror.WaitVersion(ctx, last); err != nil {
		return Outcome{}, fmt.Errorf("settle mirror: %w", err)
	}
	outcome.Final = mirror.World()

	mu.Lock()
	for _, d := range captured {
		if d.Version >= reset.Version {
			outcome.Deltas = append(outcome.Deltas, d)
		}
	}
	mu.Unlock()
	return outcome, nil
}

// NormalizeDeltas strips the run-specific parts of a delta sequence:
// versions are rebased to start at one, and transaction ids and chain
// hashes (both derived from random ids) are cleared. What remains is
// exactly the deterministic payload two replays must agree on.
func NormalizeDeltas(deltas []schema.Delta) []schema.Delta {
	if len(deltas) == 0 {
		return nil
	}
	base := deltas[0].Version - 1
	out := make([]schema.Delta, len(deltas))
	for i, d := range deltas {
		d.Version -= base
		d.TxID = ""
		d.Hash = ""
		d.PrevHash = ""
		out[i] = d
	}
	return out
}

// VerifyDeterminism replays a scenario twice and demands the two runs
// agree: identical final worlds (modulo version) and byte-identical
// encodings of the normalized delta sequences.
func (r *Runner) VerifyDeterminism(ctx context.Context, sc Scenario) error {
	first, err := r.Run(ctx, sc)
	if err != nil {
		return fmt.Errorf("first run: %w", err)
	}
	second, err := r.Run(ctx, sc)
	if err != nil {
		return fmt.Errorf("second run: %w", err)
	}

	firstWorld := first.Final.Clone()
	secondWorld := second.Final.Clone()
	firstWorld.Version = 0
	secondWorld.Version = 0
	if diff := cmp.Diff(firstWorld, secondWorld); diff != "" {
		return fmt.Errorf("final worlds diverge between runs:\n%s", diff)
	}

	if len(first.Deltas) == 0 || len(second.Deltas) == 0 {
		return fmt.Errorf("missed the reset delta (%d vs %d deltas)", len(first.Deltas), len(second.Deltas))
	}
	// The reset delta despawns whatever world preceded it, so it
	// legitimately differs between runs. Determinism holds from the
	// freshly reset world on.
	firstBytes, err := codec.Marshal(NormalizeDeltas(first.Deltas[1:]))
	if err != nil {
		return fmt.Errorf("encode first delta sequence: %w", err)
	}
	secondBytes, err := codec.Marshal(NormalizeDeltas(second.Deltas[1:]))
	if err != nil {
		return fmt.Errorf("encode second delta sequence: %w", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		return fmt.Errorf("delta sequences diverge between runs (%d vs %d deltas)", len(first.Deltas), len(second.Deltas))
	}
	return nil
}
