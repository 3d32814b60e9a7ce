package reclaim

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamsociety/reclaim/pkg/indexer"
	"github.com/screamsociety/reclaim/pkg/solana/bubblegum"
)

func generateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func filledHash(b byte) (h bubblegum.Hash) {
	for i := range h {
		h[i] = b
	}
	return h
}

func testProofBundle(t *testing.T, owner ed25519.PublicKey, nodes int) *indexer.ProofBundle {
	bundle := &indexer.ProofBundle{
		AssetID:     generateKey(t),
		TreeID:      generateKey(t),
		Root:        filledHash(1),
		DataHash:    filledHash(2),
		CreatorHash: filledHash(3),
		LeafIndex:   7,
		Owner:       owner,
	}
	for i := 0; i < nodes; i++ {
		bundle.ProofNodes = append(bundle.ProofNodes, generateKey(t))
	}
	return bundle
}

func TestBuildInstruction_Transfer(t *testing.T) {
	owner := generateKey(t)
	destination := generateKey(t)
	bundle := testProofBundle(t, owner, 14)

	instruction, err := buildInstruction(&TransferRequest{
		Asset:       AssetRef{AssetID: bundle.AssetID},
		Proof:       bundle,
		Signer:      owner,
		Destination: destination,
		Mode:        ModeTransfer,
	})
	require.NoError(t, err)

	assert.EqualValues(t, bubblegum.PROGRAM_ID, instruction.Program)
	assert.Len(t, instruction.Data, bubblegum.TransferInstructionSize)

	args, err := bubblegum.TransferInstructionFromBinary(instruction.Data)
	require.NoError(t, err)
	assert.Equal(t, bundle.Root, args.Root)
	assert.Equal(t, bundle.DataHash, args.DataHash)
	assert.Equal(t, bundle.CreatorHash, args.CreatorHash)
	assert.EqualValues(t, bundle.LeafIndex, args.Nonce)
	assert.EqualValues(t, bundle.LeafIndex, args.Index)

	expectedAuthority, _, err := bubblegum.GetTreeAuthorityAddress(bundle.TreeID)
	require.NoError(t, err)

	require.Len(t, instruction.Accounts, 7+14)
	assert.EqualValues(t, expectedAuthority, instruction.Accounts[0].PublicKey)
	assert.EqualValues(t, owner, instruction.Accounts[1].PublicKey)
	assert.True(t, instruction.Accounts[1].IsSigner)
	assert.EqualValues(t, owner, instruction.Accounts[2].PublicKey)
	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.EqualValues(t, destination, instruction.Accounts[3].PublicKey)
	assert.EqualValues(t, bundle.TreeID, instruction.Accounts[4].PublicKey)
	assert.True(t, instruction.Accounts[4].IsWritable)
	assert.EqualValues(t, bubblegum.SPL_NOOP_PROGRAM_ID, instruction.Accounts[5].PublicKey)
	assert.EqualValues(t, bubblegum.SPL_ACCOUNT_COMPRESSION_PROGRAM_ID, instruction.Accounts[6].PublicKey)
	for i, node := range bundle.ProofNodes {
		meta := instruction.Accounts[7+i]
		assert.EqualValues(t, node, meta.PublicKey)
		assert.False(t, meta.IsSigner)
		assert.False(t, meta.IsWritable)
	}
}

func TestBuildInstruction_TransferDefaultsToIncinerator(t *testing.T) {
	owner := generateKey(t)
	bundle := testProofBundle(t, owner, 5)

	instruction, err := buildInstruction(&TransferRequest{
		Asset:  AssetRef{AssetID: bundle.AssetID},
		Proof:  bundle,
		Signer: owner,
		Mode:   ModeTransfer,
	})
	require.NoError(t, err)
	assert.EqualValues(t, bubblegum.INCINERATOR_ID, instruction.Accounts[3].PublicKey)
}

func TestBuildInstruction_Burn(t *testing.T) {
	owner := generateKey(t)
	bundle := testProofBundle(t, owner, 5)

	instruction, err := buildInstruction(&TransferRequest{
		Asset:  AssetRef{AssetID: bundle.AssetID},
		Proof:  bundle,
		Signer: owner,
		Mode:   ModeBurn,
	})
	require.NoError(t, err)

	assert.EqualValues(t, bubblegum.PROGRAM_ID, instruction.Program)
	assert.Len(t, instruction.Data, bubblegum.BurnInstructionSize)

	// The burn variant carries no destination account.
	require.Len(t, instruction.Accounts, 6+5)
	assert.EqualValues(t, bundle.TreeID, instruction.Accounts[3].PublicKey)
	assert.True(t, instruction.Accounts[3].IsWritable)
}

func TestBuildInstruction_OwnershipGate(t *testing.T) {
	owner := generateKey(t)
	bundle := testProofBundle(t, owner, 5)

	_, err := buildInstruction(&TransferRequest{
		Asset:  AssetRef{AssetID: bundle.AssetID},
		Proof:  bundle,
		Signer: generateKey(t),
		Mode:   ModeTransfer,
	})
	assert.ErrorIs(t, err, indexer.ErrOwnershipMismatch)
}

func TestBuildInstruction_ForeignDelegate(t *testing.T) {
	owner := generateKey(t)
	bundle := testProofBundle(t, owner, 5)
	bundle.Delegate = generateKey(t)

	_, err := buildInstruction(&TransferRequest{
		Asset:  AssetRef{AssetID: bundle.AssetID},
		Proof:  bundle,
		Signer: owner,
		Mode:   ModeTransfer,
	})
	assert.ErrorIs(t, err, indexer.ErrOwnershipMismatch)
}

func TestBuildInstruction_IncompleteProof(t *testing.T) {
	owner := generateKey(t)

	zeroRoot := testProofBundle(t, owner, 5)
	zeroRoot.Root = bubblegum.Hash{}

	noNodes := testProofBundle(t, owner, 0)

	for _, bundle := range []*indexer.ProofBundle{zeroRoot, noNodes} {
		_, err := buildInstruction(&TransferRequest{
			Asset:  AssetRef{AssetID: bundle.AssetID},
			Proof:  bundle,
			Signer: owner,
			Mode:   ModeTransfer,
		})
		assert.ErrorIs(t, err, indexer.ErrProofIncomplete)
	}
}

func TestBuildInstruction_TooDeep(t *testing.T) {
	owner := generateKey(t)
	bundle := testProofBundle(t, owner, bubblegum.MaxProofAccounts+1)

	_, err := buildInstruction(&TransferRequest{
		Asset:  AssetRef{AssetID: bundle.AssetID},
		Proof:  bundle,
		Signer: owner,
		Mode:   ModeTransfer,
	})
	assert.ErrorIs(t, err, bubblegum.ErrUnsupportedTreeDepth)
}
