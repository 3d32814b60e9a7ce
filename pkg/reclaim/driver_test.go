package reclaim

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamsociety/reclaim/pkg/solana"
	"github.com/screamsociety/reclaim/pkg/solana/computebudget"
	"github.com/screamsociety/reclaim/pkg/testutil"
)

// fakeClient scripts submission and confirmation behavior per submitted
// transaction, in order.
type fakeClient struct {
	mu sync.Mutex

	lastValidBlock uint64
	blockHeight    uint64

	// expirations is how many submissions, from the first, should look
	// expired: unseen signature with the chain past the last valid block.
	expirations int

	// submitErrs are returned by SubmitTransaction, in order, before any
	// submission succeeds.
	submitErrs []error

	// statusErr, if set, is reported for every confirmed poll.
	statusErr *solana.TransactionError

	// neverSeen suppresses all signature statuses without expiring.
	neverSeen bool

	submitted []solana.Transaction
}

func (c *fakeClient) GetBalance(ed25519.PublicKey) (uint64, error) {
	return 0, nil
}

func (c *fakeClient) GetBlockHeight() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockHeight, nil
}

func (c *fakeClient) GetLatestBlockhash() (solana.Blockhash, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bh solana.Blockhash
	if _, err := rand.Read(bh[:]); err != nil {
		return bh, 0, err
	}
	return bh, c.lastValidBlock, nil
}

func (c *fakeClient) GetSignatureStatus(sig solana.Signature, _ solana.Commitment) (*solana.SignatureStatus, error) {
	statuses, err := c.GetSignatureStatuses([]solana.Signature{sig})
	if err != nil {
		return nil, err
	}
	return statuses[0], nil
}

func (c *fakeClient) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		index := -1
		for j, txn := range c.submitted {
			if sig == txn.Signatures[0] {
				index = j
				break
			}
		}
		if index < 0 {
			continue
		}
		if c.neverSeen {
			continue
		}
		if index < c.expirations {
			// Unseen; the block height check reveals the expiry.
			c.blockHeight = c.lastValidBlock + 1
			continue
		}

		confirmations := 5
		statuses[i] = &solana.SignatureStatus{
			Confirmations:      &confirmations,
			ConfirmationStatus: "confirmed",
			ErrorResult:        c.statusErr,
		}
	}
	return statuses, nil
}

func (c *fakeClient) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.submitErrs) > 0 {
		err := c.submitErrs[0]
		c.submitErrs = c.submitErrs[1:]
		return txn.Signatures[0], err
	}

	c.submitted = append(c.submitted, txn)
	return txn.Signatures[0], nil
}

func newTestSigner(t *testing.T) (Signer, ed25519.PublicKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return NewKeypairSigner(priv), pub
}

func newTestDriver(client solana.Client) *Driver {
	return NewDriver(client, &DriverConfig{
		ConfirmationTimeout: 100 * time.Millisecond,
		PollInterval:        time.Millisecond,
	})
}

type countingBuilder struct {
	mu     sync.Mutex
	builds int
	fn     InstructionBuilder
}

func (b *countingBuilder) build(ctx context.Context) (solana.Instruction, error) {
	b.mu.Lock()
	b.builds++
	b.mu.Unlock()
	return b.fn(ctx)
}

func fixedBuilder(t *testing.T, owner ed25519.PublicKey) *countingBuilder {
	bundle := testProofBundle(t, owner, 5)
	return &countingBuilder{
		fn: func(context.Context) (solana.Instruction, error) {
			return buildInstruction(&TransferRequest{
				Asset:  AssetRef{AssetID: bundle.AssetID},
				Proof:  bundle,
				Signer: owner,
				Mode:   ModeTransfer,
			})
		},
	}
}

func TestDriver_Confirmed(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	result := newTestDriver(client).Submit(context.Background(), AssetRef{}, builder.build, signer)

	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Equal(t, ErrorKindNone, result.ErrorKind)
	assert.NotEmpty(t, result.Signature)
	assert.NotEmpty(t, result.ID)
	assert.Contains(t, result.ExplorerURL(), result.Signature)
	assert.Equal(t, 1, builder.builds)
	require.Len(t, client.submitted, 1)

	// Compute budget headroom leads the instruction list.
	message := client.submitted[0].Message
	require.Len(t, message.Instructions, 3)

	limit, err := computebudget.ParseSetComputeUnitLimitIxnData(message.Instructions[0].Data)
	require.NoError(t, err)
	assert.EqualValues(t, defaultComputeUnitLimit, limit)

	price, err := computebudget.ParseSetComputeUnitPriceIxnData(message.Instructions[1].Data)
	require.NoError(t, err)
	assert.EqualValues(t, defaultComputeUnitPrice, price)
}

func TestDriver_BlockhashExpiryRetriesOnce(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50, expirations: 1}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	result := newTestDriver(client).Submit(context.Background(), AssetRef{}, builder.build, signer)

	assert.Equal(t, OutcomeConfirmed, result.Outcome)

	// The expired attempt triggered exactly one rebuild and resubmission.
	assert.Equal(t, 2, builder.builds)
	assert.Len(t, client.submitted, 2)

	// The rebuilt transaction carries a fresh blockhash.
	assert.NotEqual(
		t,
		client.submitted[0].Message.RecentBlockhash,
		client.submitted[1].Message.RecentBlockhash,
	)
}

func TestDriver_BlockhashExpiryBound(t *testing.T) {
	reset := testutil.DisableLogging()
	defer reset()

	client := &fakeClient{lastValidBlock: 100, blockHeight: 50, expirations: 10}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	result := newTestDriver(client).Submit(context.Background(), AssetRef{}, builder.build, signer)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, ErrorKindBlockhashExpired, result.ErrorKind)

	// Exactly one resubmission: two attempts total, never a third.
	assert.Len(t, client.submitted, 2)
}

func TestDriver_TerminalOnChainError(t *testing.T) {
	reset := testutil.DisableLogging()
	defer reset()

	client := &fakeClient{
		lastValidBlock: 100,
		blockHeight:    50,
		statusErr:      solana.NewTransactionError(solana.TransactionErrorInstructionError),
	}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	result := newTestDriver(client).Submit(context.Background(), AssetRef{}, builder.build, signer)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, ErrorKindSubmissionFailure, result.ErrorKind)

	// On-chain errors are terminal and never resubmitted.
	assert.Equal(t, 1, builder.builds)
	assert.Len(t, client.submitted, 1)
}

func TestDriver_AssumedConfirmed(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50, neverSeen: true}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	result := newTestDriver(client).Submit(context.Background(), AssetRef{}, builder.build, signer)

	assert.Equal(t, OutcomeAssumedConfirmed, result.Outcome)
	assert.Equal(t, ErrorKindConfirmationTimeout, result.ErrorKind)
	assert.True(t, result.Succeeded())
	assert.NotEmpty(t, result.Signature)
}

func TestDriver_SigningRejected(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	_, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	rejecting := &rejectingSigner{pub: owner}
	result := newTestDriver(client).Submit(context.Background(), AssetRef{}, builder.build, rejecting)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, ErrorKindSigningRejected, result.ErrorKind)
	assert.Empty(t, result.Signature)
	assert.Empty(t, result.ExplorerURL())
	assert.Len(t, client.submitted, 0)
}

type rejectingSigner struct {
	pub ed25519.PublicKey
}

func (s *rejectingSigner) PublicKey() ed25519.PublicKey {
	return s.pub
}

func (s *rejectingSigner) SignTransaction(context.Context, *solana.Transaction) error {
	return ErrSigningRejected
}

func TestDriver_SignerTechnicalFailure(t *testing.T) {
	reset := testutil.DisableLogging()
	defer reset()

	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	_, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	// A signer error that is not a rejection is a technical failure, not
	// a user choice.
	broken := &brokenSigner{pub: owner}
	result := newTestDriver(client).Submit(context.Background(), AssetRef{}, builder.build, broken)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, ErrorKindSubmissionFailure, result.ErrorKind)
	assert.Len(t, client.submitted, 0)
}

type brokenSigner struct {
	pub ed25519.PublicKey
}

func (s *brokenSigner) PublicKey() ed25519.PublicKey {
	return s.pub
}

func (s *brokenSigner) SignTransaction(context.Context, *solana.Transaction) error {
	return errors.New("signing key unavailable")
}

func TestDriver_VerifyUpgradesAssumedConfirmation(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50, neverSeen: true}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	driver := newTestDriver(client)
	result := driver.Submit(context.Background(), AssetRef{}, builder.build, signer)
	require.Equal(t, OutcomeAssumedConfirmed, result.Outcome)

	// Still unseen: the assumption stands.
	verified := driver.Verify(context.Background(), result)
	assert.Equal(t, OutcomeAssumedConfirmed, verified.Outcome)

	// The transaction settles late; verification upgrades the result.
	client.neverSeen = false
	verified = driver.Verify(context.Background(), result)
	assert.Equal(t, OutcomeConfirmed, verified.Outcome)
	assert.Equal(t, ErrorKindNone, verified.ErrorKind)
	assert.Empty(t, verified.Message)
	assert.Equal(t, result.Signature, verified.Signature)
}

func TestDriver_VerifyReportsLateFailure(t *testing.T) {
	reset := testutil.DisableLogging()
	defer reset()

	client := &fakeClient{lastValidBlock: 100, blockHeight: 50, neverSeen: true}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	driver := newTestDriver(client)
	result := driver.Submit(context.Background(), AssetRef{}, builder.build, signer)
	require.Equal(t, OutcomeAssumedConfirmed, result.Outcome)

	client.neverSeen = false
	client.statusErr = solana.NewTransactionError(solana.TransactionErrorInstructionError)

	verified := driver.Verify(context.Background(), result)
	assert.Equal(t, OutcomeFailed, verified.Outcome)
	assert.Equal(t, ErrorKindSubmissionFailure, verified.ErrorKind)
}

func TestDriver_VerifyIgnoresOtherOutcomes(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	signer, owner := newTestSigner(t)
	builder := fixedBuilder(t, owner)

	driver := newTestDriver(client)
	result := driver.Submit(context.Background(), AssetRef{}, builder.build, signer)
	require.Equal(t, OutcomeConfirmed, result.Outcome)

	verified := driver.Verify(context.Background(), result)
	assert.Equal(t, result, verified)
}
