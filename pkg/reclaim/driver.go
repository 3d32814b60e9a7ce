package reclaim

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/screamsociety/reclaim/pkg/indexer"
	"github.com/screamsociety/reclaim/pkg/metrics"
	"github.com/screamsociety/reclaim/pkg/solana"
	"github.com/screamsociety/reclaim/pkg/solana/bubblegum"
	"github.com/screamsociety/reclaim/pkg/solana/computebudget"
)

// State tracks where a submission is in its lifecycle. It exists for
// logging; transitions are linear with a single Confirming to Building
// loopback on blockhash expiry.
type State uint8

const (
	StateBuilding State = iota
	StateAwaitingSignature
	StateSubmitting
	StateConfirming
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateAwaitingSignature:
		return "awaiting_signature"
	case StateSubmitting:
		return "submitting"
	case StateConfirming:
		return "confirming"
	default:
		return "unknown"
	}
}

const (
	// maxBlockhashRebuilds caps how many times an expired blockhash causes
	// a rebuild and resubmission. Exactly one; a second expiry means
	// something is wrong with the RPC node or the clock, and hammering the
	// network won't fix it.
	maxBlockhashRebuilds = 1

	defaultConfirmationTimeout = 45 * time.Second
	defaultComputeUnitLimit    = 200_000
	defaultComputeUnitPrice    = 1_000
)

// InstructionBuilder produces a fresh instruction for a submission attempt.
// It is invoked once per attempt so a rebuild after blockhash expiry
// re-resolves the proof instead of replaying stale state.
type InstructionBuilder func(ctx context.Context) (solana.Instruction, error)

// DriverConfig tunes the driver. The zero value of any field selects a
// default.
type DriverConfig struct {
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	ComputeUnitLimit    uint32
	ComputeUnitPrice    uint64
}

// Driver walks a single transaction through build, sign, submit, and
// confirm.
type Driver struct {
	log    *logrus.Entry
	client solana.Client

	confirmationTimeout time.Duration
	pollInterval        time.Duration
	computeUnitLimit    uint32
	computeUnitPrice    uint64
}

// NewDriver returns a Driver submitting through the provided client.
func NewDriver(client solana.Client, config *DriverConfig) *Driver {
	if config == nil {
		config = &DriverConfig{}
	}

	d := &Driver{
		log:                 logrus.StandardLogger().WithField("type", "reclaim/driver"),
		client:              client,
		confirmationTimeout: config.ConfirmationTimeout,
		pollInterval:        config.PollInterval,
		computeUnitLimit:    config.ComputeUnitLimit,
		computeUnitPrice:    config.ComputeUnitPrice,
	}
	if d.confirmationTimeout <= 0 {
		d.confirmationTimeout = defaultConfirmationTimeout
	}
	if d.pollInterval <= 0 {
		d.pollInterval = solana.PollRate
	}
	if d.computeUnitLimit == 0 {
		d.computeUnitLimit = defaultComputeUnitLimit
	}
	if d.computeUnitPrice == 0 {
		d.computeUnitPrice = defaultComputeUnitPrice
	}
	return d
}

// Submit drives one asset's transaction to a terminal outcome. All failure
// paths are reported through the result; Submit never panics the batch.
func (d *Driver) Submit(ctx context.Context, asset AssetRef, build InstructionBuilder, signer Signer) *TransferResult {
	start := time.Now()

	var result *TransferResult
	for attempt := 0; ; attempt++ {
		var expired bool
		result, expired = d.attempt(ctx, asset, build, signer)
		if !expired {
			break
		}
		if attempt >= maxBlockhashRebuilds {
			result = failedResult(asset, ErrorKindBlockhashExpired, "blockhash expired again after rebuilding")
			break
		}

		d.log.WithField("attempt", attempt).Info("blockhash expired, rebuilding transaction")
		metrics.RecordCount(ctx, "reclaim/driver/blockhash_rebuild", 1)
	}

	metrics.RecordDuration(ctx, "reclaim/driver/submit_duration", time.Since(start))
	metrics.RecordCount(ctx, "reclaim/driver/outcome_"+result.Outcome.String(), 1)
	return result
}

// attempt runs one full pass of the state machine. The boolean reports a
// blockhash expiry, which is the only condition the caller retries.
func (d *Driver) attempt(ctx context.Context, asset AssetRef, build InstructionBuilder, signer Signer) (*TransferResult, bool) {
	log := d.log.WithField("state", StateBuilding)

	instruction, err := build(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to build instruction")
		return failedResult(asset, classifyError(err), err.Error()), false
	}

	blockhash, lastValidBlock, err := d.client.GetLatestBlockhash()
	if err != nil {
		log.WithError(err).Warn("failed to get latest blockhash")
		return failedResult(asset, ErrorKindSubmissionFailure, err.Error()), false
	}

	txn := solana.NewTransaction(
		signer.PublicKey(),
		computebudget.SetComputeUnitLimit(d.computeUnitLimit),
		computebudget.SetComputeUnitPrice(d.computeUnitPrice),
		instruction,
	)
	txn.SetBlockhash(blockhash)

	log = d.log.WithField("state", StateAwaitingSignature)
	if err := signWithTimeout(ctx, signer, &txn); err != nil {
		// A rejection keeps its own kind so callers can present it as a
		// user choice rather than a technical failure.
		kind := ErrorKindSubmissionFailure
		if errors.Is(err, ErrSigningRejected) {
			kind = ErrorKindSigningRejected
		}

		log.WithError(err).Warn("signer did not authorize transaction")
		return failedResult(asset, kind, err.Error()), false
	}

	log = d.log.WithField("state", StateSubmitting)
	sig, err := d.client.SubmitTransaction(txn, solana.CommitmentConfirmed)
	if err != nil {
		if isBlockhashExpiredError(err) {
			return nil, true
		}

		log.WithError(err).Warn("transaction submission failed")
		return failedResult(asset, ErrorKindSubmissionFailure, err.Error()), false
	}

	return d.confirm(ctx, asset, sig, lastValidBlock)
}

// confirm polls for the signature until it is confirmed, errored, expired,
// or the timeout lapses.
func (d *Driver) confirm(ctx context.Context, asset AssetRef, sig solana.Signature, lastValidBlock uint64) (*TransferResult, bool) {
	log := d.log.WithFields(logrus.Fields{
		"state":     StateConfirming,
		"signature": base58.Encode(sig[:]),
	})

	deadline := time.Now().Add(d.confirmationTimeout)
	for {
		statuses, err := d.client.GetSignatureStatuses([]solana.Signature{sig})
		if err != nil {
			// Transient polling failures don't fail the attempt.
			log.WithError(err).Debug("failed to poll signature status")
		} else if status := statuses[0]; status != nil {
			if status.ErrorResult != nil {
				if status.ErrorResult.ErrorKey() == solana.TransactionErrorBlockhashNotFound {
					return nil, true
				}

				// Any other on-chain error is terminal. The state it
				// reflects won't change on resubmission.
				log.WithError(status.ErrorResult).Warn("transaction failed on chain")
				result := failedResult(asset, ErrorKindSubmissionFailure, status.ErrorResult.Error())
				result.Signature = base58.Encode(sig[:])
				return result, false
			}

			if status.Confirmed() {
				result := newResult(asset)
				result.Outcome = OutcomeConfirmed
				result.Signature = base58.Encode(sig[:])
				return result, false
			}
		} else {
			// Unseen signature. If the chain has advanced past the last
			// valid block the transaction can no longer land.
			height, err := d.client.GetBlockHeight()
			if err == nil && height > lastValidBlock {
				return nil, true
			}
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(d.pollInterval):
		}
	}

	// No on-chain error was observed, so the transaction may still have
	// landed. Claiming failure here could trigger a double submission by
	// a caller, which is worse than an unconfirmed success.
	log.Info("confirmation window lapsed without a terminal status")
	result := newResult(asset)
	result.Outcome = OutcomeAssumedConfirmed
	result.Signature = base58.Encode(sig[:])
	result.ErrorKind = ErrorKindConfirmationTimeout
	result.Message = "confirmation not observed before timeout"
	return result, false
}

// Verify re-checks an assumed confirmation against the chain. An assumed
// result may have landed after the polling window lapsed; callers decide
// when to re-verify, so this is a separate step rather than part of Submit.
// Results in any other outcome are returned unchanged.
func (d *Driver) Verify(ctx context.Context, result *TransferResult) *TransferResult {
	if result.Outcome != OutcomeAssumedConfirmed || result.Signature == "" {
		return result
	}

	raw, err := base58.Decode(result.Signature)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return result
	}
	var sig solana.Signature
	copy(sig[:], raw)

	log := d.log.WithField("signature", result.Signature)

	status, err := d.client.GetSignatureStatus(sig, solana.CommitmentConfirmed)
	if err != nil || status == nil {
		// Still unseen; the assumption stands.
		log.WithError(err).Debug("signature still unobserved during verification")
		return result
	}

	if status.ErrorResult != nil {
		log.WithError(status.ErrorResult).Warn("assumed confirmation failed on chain")
		result.Outcome = OutcomeFailed
		result.ErrorKind = ErrorKindSubmissionFailure
		result.Message = status.ErrorResult.Error()
		metrics.RecordCount(ctx, "reclaim/driver/verify_failed", 1)
		return result
	}

	if status.Confirmed() {
		result.Outcome = OutcomeConfirmed
		result.ErrorKind = ErrorKindNone
		result.Message = ""
		metrics.RecordCount(ctx, "reclaim/driver/verify_confirmed", 1)
	}
	return result
}

func isBlockhashExpiredError(err error) bool {
	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		return txErr.ErrorKey() == solana.TransactionErrorBlockhashNotFound
	}
	return false
}

// classifyError maps resolution and encoding failures onto the caller
// facing taxonomy.
func classifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, indexer.ErrProofNotFound):
		return ErrorKindProofNotFound
	case errors.Is(err, indexer.ErrProofIncomplete):
		return ErrorKindProofIncomplete
	case errors.Is(err, indexer.ErrOwnershipMismatch):
		return ErrorKindOwnershipMismatch
	case errors.Is(err, indexer.ErrUnavailable):
		return ErrorKindIndexerUnavailable
	case errors.Is(err, bubblegum.ErrUnsupportedTreeDepth):
		return ErrorKindUnsupportedTreeDepth
	case errors.Is(err, bubblegum.ErrInvalidProof), errors.Is(err, bubblegum.ErrInvalidInstructionData):
		return ErrorKindInvalidProof
	case errors.Is(err, ErrSigningRejected):
		return ErrorKindSigningRejected
	default:
		return ErrorKindSubmissionFailure
	}
}
