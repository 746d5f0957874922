package logic

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/onekgame/onek/internal/client"
	"github.com/onekgame/onek/internal/platform/id"
	"github.com/onekgame/onek/internal/schema"
)

// maxProposeAttempts bounds how often one intent is re-evaluated after
// a retryable rejection before it is discarded.
const maxProposeAttempts = 5

// Engine evaluates intents against its world mirror and drives the
// resulting proposals to commit.
type Engine struct {
	client *client.Client

	// lastCommit is the newest version this engine committed. Each
	// intent waits for the mirror to reach it, so a scripted sequence
	// of intents sees its own writes in order.
	lastCommit atomic.Uint64
}

// NewEngine wraps an authority client.
func NewEngine(c *client.Client) *Engine {
	return &Engine{client: c}
}

// HandleIntent evaluates one intent and proposes its transaction.
// Retryable rejections (the world moved underneath the evaluation)
// re-evaluate against the refreshed mirror and resubmit as a brand-new
// transaction; after bounded attempts, or when re-evaluation finds the
// intent no longer applicable, it is discarded.
func (e *Engine) HandleIntent(ctx context.Context, intent schema.Intent) (schema.IntentResult, error) {
	var result schema.IntentResult

	backoff := retry.WithMaxRetries(maxProposeAttempts-1, retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := e.client.WaitVersion(ctx, e.lastCommit.Load()); err != nil {
			return err
		}
		eval, err := Evaluate(intent, e.client.World())
		if err != nil {
			return err
		}
		if eval.Discarded {
			result = schema.IntentResult{Discarded: true}
			return nil
		}
		if eval.Transaction == nil {
			result = schema.IntentResult{Notes: eval.Notes}
			return nil
		}

		tx := *eval.Transaction
		tx.ID, err = id.NewID()
		if err != nil {
			return err
		}
		tx.BaseVersion = e.client.Version()

		verdict, err := e.client.Propose(ctx, tx)
		if err != nil {
			return fmt.Errorf("propose %s: %w", tx.ID, err)
		}
		if verdict.Committed() {
			e.lastCommit.Store(verdict.Version)
			result = schema.IntentResult{Version: verdict.Version, Notes: eval.Notes}
			return nil
		}
		if verdict.Rejected.Reason.Retryable() {
			log.Printf("proposal %s rejected (%s), re-evaluating", tx.ID, verdict.Rejected.Reason)
			return retry.RetryableError(fmt.Errorf("rejected: %s", verdict.Rejected.Reason))
		}
		// A deterministic rejection of our own proposal is a rules
		// bug; retrying it can never succeed.
		return fmt.Errorf("proposal %s rejected: %w", tx.ID, *verdict.Rejected)
	})
	if err != nil {
		if ctx.Err() != nil {
			return schema.IntentResult{}, err
		}
		// Either retries ran out because the world kept moving, or the
		// rules built an uncommittable proposal. Drop the intent; the
		// player can reissue it against what they now see.
		log.Printf("discarding %s intent: %v", intent.Kind, err)
		return schema.IntentResult{Discarded: true}, nil
	}
	return result, nil
}
