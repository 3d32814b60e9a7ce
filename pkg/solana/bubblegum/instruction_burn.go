package bubblegum

import (
	"bytes"
	"crypto/ed25519"

	"github.com/screamsociety/reclaim/pkg/solana"
)

var burnInstructionDiscriminator = []byte{
	116, 110, 29, 56, 107, 219, 42, 93,
}

// BurnInstructionSize is the exact payload size of a burn. The layout is
// identical to the transfer payload; the burn variant has no destination
// account.
const BurnInstructionSize = 8 + // discriminator
	LeafArgsSize

type BurnInstructionAccounts struct {
	TreeAuthority ed25519.PublicKey
	LeafOwner     ed25519.PublicKey
	LeafDelegate  ed25519.PublicKey
	MerkleTree    ed25519.PublicKey
}

// NewBurnInstruction encodes a leaf burn.
//
// Accounts expected by the on-chain program, in order:
//
//	0. `[]`         Tree authority (PDA of the merkle tree)
//	1. `[signer]`   Leaf owner
//	2. `[signer]`   Leaf delegate (normally the owner)
//	3. `[writable]` Merkle tree account
//	4. `[]`         Log wrapper (noop) program
//	5. `[]`         Account compression program
//	6+ `[]`         Proof nodes, leaf to root
func NewBurnInstruction(
	accounts *BurnInstructionAccounts,
	args *LeafArgs,
	proof []ed25519.PublicKey,
) (solana.Instruction, error) {
	if err := validateLeafArgs(args); err != nil {
		return solana.Instruction{}, err
	}
	if len(proof) == 0 {
		return solana.Instruction{}, ErrInvalidProof
	}
	if len(proof) > MaxProofAccounts {
		return solana.Instruction{}, ErrUnsupportedTreeDepth
	}

	var offset int
	data := make([]byte, BurnInstructionSize)
	putDiscriminator(data, burnInstructionDiscriminator, &offset)
	putLeafArgs(data, args, &offset)

	if offset != BurnInstructionSize {
		return solana.Instruction{}, ErrInvalidProof
	}

	metas := []solana.AccountMeta{
		solana.NewReadonlyAccountMeta(accounts.TreeAuthority, false),
		solana.NewReadonlyAccountMeta(accounts.LeafOwner, true),
		solana.NewReadonlyAccountMeta(accounts.LeafDelegate, true),
		solana.NewAccountMeta(accounts.MerkleTree, false),
		solana.NewReadonlyAccountMeta(SPL_NOOP_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SPL_ACCOUNT_COMPRESSION_PROGRAM_ID, false),
	}
	for _, node := range proof {
		metas = append(metas, solana.NewReadonlyAccountMeta(node, false))
	}

	return solana.NewInstruction(PROGRAM_ID, data, metas...), nil
}

// BurnInstructionFromBinary recovers the leaf arguments from a burn payload.
func BurnInstructionFromBinary(data []byte) (*LeafArgs, error) {
	if len(data) != BurnInstructionSize {
		return nil, ErrInvalidInstructionData
	}

	var offset int
	var discriminator []byte
	getDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, burnInstructionDiscriminator) {
		return nil, ErrInvalidInstructionData
	}

	var args LeafArgs
	getLeafArgs(data, &args, &offset)
	return &args, nil
}
