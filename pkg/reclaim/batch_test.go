package reclaim

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamsociety/reclaim/pkg/indexer"
	"github.com/screamsociety/reclaim/pkg/rate"
	"github.com/screamsociety/reclaim/pkg/solana"
)

// fakeResolver fabricates a consistent proof for any asset, using the
// asset id as the tree address so tests can pick transactions apart.
type fakeResolver struct {
	mu       sync.Mutex
	resolves int
	errs     map[string]error
}

func (r *fakeResolver) Resolve(_ context.Context, assetID, expectedOwner ed25519.PublicKey, _ rate.Priority) (*indexer.ProofBundle, error) {
	r.mu.Lock()
	r.resolves++
	r.mu.Unlock()

	if err, ok := r.errs[string(assetID)]; ok {
		return nil, err
	}

	bundle := &indexer.ProofBundle{
		AssetID:     assetID,
		TreeID:      assetID,
		Root:        filledHash(1),
		DataHash:    filledHash(2),
		CreatorHash: filledHash(3),
		LeafIndex:   1,
		Owner:       expectedOwner,
	}
	for i := byte(0); i < 5; i++ {
		node := filledHash(10 + i)
		bundle.ProofNodes = append(bundle.ProofNodes, node[:])
	}
	return bundle, nil
}

// selectiveSigner rejects any transaction touching the configured merkle
// tree and signs everything else.
type selectiveSigner struct {
	inner      Signer
	rejectTree ed25519.PublicKey
}

func (s *selectiveSigner) PublicKey() ed25519.PublicKey {
	return s.inner.PublicKey()
}

func (s *selectiveSigner) SignTransaction(ctx context.Context, txn *solana.Transaction) error {
	for _, account := range txn.Message.Accounts {
		if bytes.Equal(account, s.rejectTree) {
			return ErrSigningRejected
		}
	}
	return s.inner.SignTransaction(ctx, txn)
}

func TestBatch_Isolation(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	resolver := &fakeResolver{}
	keypair, _ := newTestSigner(t)

	assets := make([]AssetRef, 5)
	for i := range assets {
		assets[i] = AssetRef{AssetID: generateKey(t)}
	}

	// The signer declines asset #3 and authorizes the rest.
	signer := &selectiveSigner{inner: keypair, rejectTree: assets[2].AssetID}

	batch := NewBatch(NewPipeline(resolver, newTestDriver(client)), 3)
	results := batch.Process(context.Background(), assets, signer, nil, ModeTransfer)

	require.Len(t, results, 5)
	for i, result := range results {
		require.NotNil(t, result, i)
		assert.EqualValues(t, assets[i].AssetID, result.Asset.AssetID, i)

		if i == 2 {
			assert.Equal(t, OutcomeFailed, result.Outcome, i)
			assert.Equal(t, ErrorKindSigningRejected, result.ErrorKind, i)
			assert.Empty(t, result.Signature, i)
		} else {
			assert.Equal(t, OutcomeConfirmed, result.Outcome, i)
			assert.NotEmpty(t, result.Signature, i)
		}
	}

	// Four transactions made it to the network, and every result carries
	// a distinct trace id.
	assert.Len(t, client.submitted, 4)
	seen := make(map[string]struct{})
	for _, result := range results {
		seen[result.ID] = struct{}{}
	}
	assert.Len(t, seen, 5)
}

func TestBatch_ResolutionFailureIsolated(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	signer, _ := newTestSigner(t)

	assets := []AssetRef{
		{AssetID: generateKey(t)},
		{AssetID: generateKey(t)},
		{AssetID: generateKey(t)},
	}

	resolver := &fakeResolver{
		errs: map[string]error{
			string(assets[1].AssetID): indexer.ErrProofNotFound,
		},
	}

	batch := NewBatch(NewPipeline(resolver, newTestDriver(client)), 2)
	results := batch.Process(context.Background(), assets, signer, nil, ModeBurn)

	require.Len(t, results, 3)
	assert.Equal(t, OutcomeConfirmed, results[0].Outcome)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	assert.Equal(t, ErrorKindProofNotFound, results[1].ErrorKind)
	assert.Equal(t, OutcomeConfirmed, results[2].Outcome)
}

func TestBatch_DuplicateAssetsSerialize(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	resolver := &fakeResolver{}
	signer, _ := newTestSigner(t)

	asset := AssetRef{AssetID: generateKey(t)}
	assets := []AssetRef{asset, asset, asset}

	batch := NewBatch(NewPipeline(resolver, newTestDriver(client)), 3)
	results := batch.Process(context.Background(), assets, signer, nil, ModeTransfer)

	require.Len(t, results, 3)
	for _, result := range results {
		assert.Equal(t, OutcomeConfirmed, result.Outcome)
	}

	// Each attempt re-resolved the proof rather than sharing one.
	assert.Equal(t, 3, resolver.resolves)
}

type refusingSigner struct {
	t   *testing.T
	pub ed25519.PublicKey
}

func (s *refusingSigner) PublicKey() ed25519.PublicKey {
	return s.pub
}

func (s *refusingSigner) SignTransaction(context.Context, *solana.Transaction) error {
	s.t.Error("signer must not be invoked")
	return ErrSigningRejected
}

func TestPipeline_OwnershipGate(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50}
	asset := AssetRef{AssetID: generateKey(t)}

	resolver := &fakeResolver{
		errs: map[string]error{
			string(asset.AssetID): indexer.ErrOwnershipMismatch,
		},
	}

	// The gate fires before any instruction exists: nothing is signed and
	// nothing reaches the network.
	signer := &refusingSigner{t: t, pub: generateKey(t)}

	pipeline := NewPipeline(resolver, newTestDriver(client))
	result := pipeline.Process(context.Background(), asset, signer, nil, ModeTransfer, rate.PriorityNormal)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, ErrorKindOwnershipMismatch, result.ErrorKind)
	assert.Empty(t, result.Signature)
	assert.Len(t, client.submitted, 0)
}

func TestPipeline_ReresolvesOnRebuild(t *testing.T) {
	client := &fakeClient{lastValidBlock: 100, blockHeight: 50, expirations: 1}
	resolver := &fakeResolver{}
	signer, _ := newTestSigner(t)

	pipeline := NewPipeline(resolver, newTestDriver(client))
	result := pipeline.Process(context.Background(), AssetRef{AssetID: generateKey(t)}, signer, nil, ModeTransfer, rate.PriorityInteractive)

	assert.Equal(t, OutcomeConfirmed, result.Outcome)

	// The rebuild after blockhash expiry fetched a fresh proof.
	assert.Equal(t, 2, resolver.resolves)
}
