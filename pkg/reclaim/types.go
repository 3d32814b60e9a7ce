package reclaim

import (
	"crypto/ed25519"
	"fmt"

	"github.com/google/uuid"

	"github.com/screamsociety/reclaim/pkg/indexer"
)

// Mode selects how a leaf is removed from the signer's wallet.
type Mode uint8

const (
	// ModeTransfer reassigns the leaf to a destination wallet.
	ModeTransfer Mode = iota

	// ModeBurn destroys the leaf outright.
	ModeBurn
)

func (m Mode) String() string {
	switch m {
	case ModeTransfer:
		return "transfer"
	case ModeBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// AssetRef identifies a compressed asset to act on.
type AssetRef struct {
	AssetID ed25519.PublicKey
}

// TransferRequest is a single resolved, ready-to-encode action. The proof
// inside is consumed by exactly one submission attempt; a rebuild after
// blockhash expiry re-resolves rather than reusing it.
type TransferRequest struct {
	Asset AssetRef
	Proof *indexer.ProofBundle

	Signer      ed25519.PublicKey
	Destination ed25519.PublicKey
	Mode        Mode
}

// Outcome is the terminal classification of an attempt.
type Outcome uint8

const (
	OutcomeFailed Outcome = iota

	// OutcomeConfirmed means the network acknowledged the transaction at
	// the requested commitment.
	OutcomeConfirmed

	// OutcomeAssumedConfirmed means confirmation polling timed out without
	// observing an on-chain error. The transaction may still have landed,
	// so the signature is reported for manual inspection rather than
	// claiming failure.
	OutcomeAssumedConfirmed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeAssumedConfirmed:
		return "assumed_confirmed"
	default:
		return "failed"
	}
}

// ErrorKind classifies a failed attempt for callers that branch on the
// failure rather than log it.
type ErrorKind uint8

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindProofNotFound
	ErrorKindProofIncomplete
	ErrorKindOwnershipMismatch
	ErrorKindInvalidProof
	ErrorKindUnsupportedTreeDepth
	ErrorKindSigningRejected
	ErrorKindBlockhashExpired
	ErrorKindSubmissionFailure
	ErrorKindConfirmationTimeout
	ErrorKindIndexerUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindProofNotFound:
		return "proof_not_found"
	case ErrorKindProofIncomplete:
		return "proof_incomplete"
	case ErrorKindOwnershipMismatch:
		return "ownership_mismatch"
	case ErrorKindInvalidProof:
		return "invalid_proof"
	case ErrorKindUnsupportedTreeDepth:
		return "unsupported_tree_depth"
	case ErrorKindSigningRejected:
		return "signing_rejected"
	case ErrorKindBlockhashExpired:
		return "blockhash_expired"
	case ErrorKindSubmissionFailure:
		return "submission_failure"
	case ErrorKindConfirmationTimeout:
		return "confirmation_timeout"
	case ErrorKindIndexerUnavailable:
		return "indexer_unavailable"
	default:
		return "unknown"
	}
}

// TransferResult is the terminal report for one asset.
type TransferResult struct {
	// ID traces this attempt through logs and metrics.
	ID string

	Asset   AssetRef
	Outcome Outcome

	// Signature is set for any attempt that reached submission, including
	// assumed confirmations.
	Signature string

	ErrorKind ErrorKind
	Message   string
}

// Succeeded reports whether the leaf left the wallet, or may have.
func (r *TransferResult) Succeeded() bool {
	return r.Outcome == OutcomeConfirmed || r.Outcome == OutcomeAssumedConfirmed
}

// ExplorerURL returns a block explorer link for the submitted transaction,
// or an empty string if nothing was submitted.
func (r *TransferResult) ExplorerURL() string {
	if r.Signature == "" {
		return ""
	}
	return fmt.Sprintf("https://solscan.io/tx/%s", r.Signature)
}

func newResult(asset AssetRef) *TransferResult {
	return &TransferResult{
		ID:    uuid.New().String(),
		Asset: asset,
	}
}

func failedResult(asset AssetRef, kind ErrorKind, message string) *TransferResult {
	result := newResult(asset)
	result.Outcome = OutcomeFailed
	result.ErrorKind = kind
	result.Message = message
	return result
}
