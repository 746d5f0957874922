package authority

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/onekgame/onek/internal/codec"
	"github.com/onekgame/onek/internal/schema"
)

// deltaEnvelope is the canonical hashed form of one commit. The
// deterministic encoder fixes field ordering, so every build hashing
// the same commit produces the same digest.
type deltaEnvelope struct {
	PrevHash string          `cbor:"prev_hash"`
	Version  uint64          `cbor:"version"`
	TxID     string          `cbor:"tx_id"`
	Effects  []schema.Effect `cbor:"effects"`
}

// DeltaHash computes the chain hash linking a commit to its
// predecessor: SHA-256 over the canonical envelope, truncated to 128
// bits (32 hex characters) for a compact identity.
func DeltaHash(prevHash string, version uint64, txID string, effects []schema.Effect) (string, error) {
	payload, err := codec.Marshal(deltaEnvelope{
		PrevHash: prevHash,
		Version:  version,
		TxID:     txID,
		Effects:  effects,
	})
	if err != nil {
		return "", fmt.Errorf("encode delta envelope: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:16]), nil
}

// VerifyChain recomputes the hash chain over a contiguous run of
// deltas, anchored at prevHash (empty for a chain starting at the
// genesis world). Used on journal restore and by mirrors auditing the
// stream.
func VerifyChain(deltas []schema.Delta, prevHash string) error {
	for i, d := range deltas {
		if d.PrevHash != prevHash {
			return fmt.Errorf("delta %d (version %d): prev hash %q does not extend %q", i, d.Version, d.PrevHash, prevHash)
		}
		want, err := DeltaHash(prevHash, d.Version, d.TxID, d.Effects)
		if err != nil {
			return err
		}
		if d.Hash != want {
			return fmt.Errorf("delta %d (version %d): hash %q does not match recomputed %q", i, d.Version, d.Hash, want)
		}
		prevHash = d.Hash
	}
	return nil
}
