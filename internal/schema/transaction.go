package schema

import (
	"fmt"

	"github.com/onekgame/onek/internal/codec"
)

// Precondition guards a transaction against stale observations. Two
// forms exist:
//
//   - a version guard (Version non-nil): the world must be at exactly
//     that version when the transaction is validated;
//   - an entity guard: the named component on the named entity must
//     encode to exactly Expected. MustExist=false with nil Expected
//     asserts the entity does not exist (spawn guard).
//
// Entity guards are the common case — they let transactions touching
// disjoint entities commit back to back even though each was built
// against the same observed version.
type Precondition struct {
	Version   *uint64          `cbor:"version,omitempty"`
	Entity    Oid              `cbor:"entity,omitempty"`
	Component Component        `cbor:"component,omitempty"`
	Expected  codec.RawMessage `cbor:"expected,omitempty"`
	MustExist bool             `cbor:"must_exist,omitempty"`
}

// VersionGuard builds a precondition requiring an exact world version.
func VersionGuard(version uint64) Precondition {
	return Precondition{Version: &version}
}

// ComponentGuard builds a precondition asserting the current value of
// one component.
func ComponentGuard(entity Oid, component Component, value any) (Precondition, error) {
	raw, err := codec.Marshal(value)
	if err != nil {
		return Precondition{}, fmt.Errorf("encode expected %s: %w", component, err)
	}
	return Precondition{Entity: entity, Component: component, Expected: raw, MustExist: true}, nil
}

// AbsenceGuard builds a precondition asserting the entity does not
// exist yet.
func AbsenceGuard(entity Oid) Precondition {
	return Precondition{Entity: entity}
}

// Transaction is an atomic, precondition-guarded candidate mutation.
// It is proposed by the logic engine and either fully committed or
// rejected by the state authority; there is no partial application. A
// rejected transaction's retry is a brand-new transaction with a new
// ID.
type Transaction struct {
	// ID correlates the proposal with its TransactionResult.
	ID string `cbor:"id"`
	// BaseVersion is the world version the proposer observed when
	// building the transaction. Advisory: recorded for diagnostics and
	// replay ordering, not itself a guard. Use VersionGuard for a
	// strict version match.
	BaseVersion   uint64         `cbor:"base_version"`
	Preconditions []Precondition `cbor:"preconditions,omitempty"`
	Effects       []Effect       `cbor:"effects"`
}

// RejectReason classifies why a proposal was not committed.
type RejectReason string

const (
	// RejectInvalid marks a malformed or schema-invalid proposal.
	RejectInvalid RejectReason = "invalid_transaction"
	// RejectStaleVersion marks a failed version guard.
	RejectStaleVersion RejectReason = "stale_version"
	// RejectMissingEntity marks a guard or effect referencing an
	// entity that does not exist (or exists when asserted absent).
	RejectMissingEntity RejectReason = "missing_entity"
	// RejectComponentMismatch marks an entity guard whose observed
	// value no longer matches.
	RejectComponentMismatch RejectReason = "component_mismatch"
	// RejectInvariant marks effects that would violate a world
	// invariant if committed.
	RejectInvariant RejectReason = "invariant_violation"
)

// Retryable reports whether the proposer should re-evaluate against
// fresher state and possibly resubmit. Validation and invariant
// rejections are deterministic — resubmitting the same proposal can
// never succeed.
func (r RejectReason) Retryable() bool {
	return r == RejectStaleVersion || r == RejectMissingEntity || r == RejectComponentMismatch
}

// Rejection carries the reason a proposal was refused.
type Rejection struct {
	Reason RejectReason `cbor:"reason"`
	Detail string       `cbor:"detail,omitempty"`
}

func (r Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// TransactionResult is the authority's synchronous answer to a
// proposal: Committed (Version set, Rejected nil) or Rejected.
type TransactionResult struct {
	TxID     string     `cbor:"tx_id"`
	Version  uint64     `cbor:"version,omitempty"`
	Rejected *Rejection `cbor:"rejected,omitempty"`
}

// Committed reports whether the proposal was applied.
func (r TransactionResult) Committed() bool {
	return r.Rejected == nil
}
