package indexer

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/screamsociety/reclaim/pkg/solana/bubblegum"
)

var (
	// ErrProofNotFound indicates the indexer has no record of the asset.
	ErrProofNotFound = errors.New("indexer: proof not found")

	// ErrProofIncomplete indicates the indexer responded, but the response
	// is missing a required field across all queried surfaces.
	ErrProofIncomplete = errors.New("indexer: proof incomplete")

	// ErrOwnershipMismatch indicates the resolved leaf owner is not the
	// expected signer.
	ErrOwnershipMismatch = errors.New("indexer: ownership mismatch")

	// ErrUnavailable indicates the indexer could not be reached after
	// bounded retries.
	ErrUnavailable = errors.New("indexer: unavailable")
)

// ProofBundle is the resolved state needed to act on a compressed asset at
// a point in time. The root changes whenever any leaf in the tree mutates,
// so bundles go stale quickly and must be re-resolved per attempt, never
// cached.
type ProofBundle struct {
	AssetID ed25519.PublicKey
	TreeID  ed25519.PublicKey

	Root        bubblegum.Hash
	DataHash    bubblegum.Hash
	CreatorHash bubblegum.Hash

	// LeafIndex is the leaf's position in the tree. The on-chain program
	// consumes it twice, once as nonce and once as index.
	LeafIndex uint64

	// ProofNodes are the sibling hashes from leaf to root. A canopy-backed
	// tree returns fewer nodes than its depth; that shortening is done by
	// the indexer, never locally.
	ProofNodes []ed25519.PublicKey

	Owner    ed25519.PublicKey
	Delegate ed25519.PublicKey
}

// Validate rejects a bundle missing any field the instruction encoder
// requires. Missing hashes are never defaulted; a placeholder hash encodes
// an instruction that deterministically fails on chain with an opaque
// error, which is strictly worse than failing here.
func (b *ProofBundle) Validate() error {
	if b == nil {
		return ErrProofIncomplete
	}
	if len(b.TreeID) != ed25519.PublicKeySize {
		return ErrProofIncomplete
	}
	if b.Root.IsZero() || b.DataHash.IsZero() || b.CreatorHash.IsZero() {
		return ErrProofIncomplete
	}
	if len(b.ProofNodes) == 0 {
		return ErrProofIncomplete
	}
	for _, node := range b.ProofNodes {
		if len(node) != ed25519.PublicKeySize {
			return ErrProofIncomplete
		}
	}
	if len(b.Owner) != ed25519.PublicKeySize {
		return ErrProofIncomplete
	}
	return nil
}
