package bubblegum

import (
	"bytes"
	"crypto/ed25519"

	"github.com/screamsociety/reclaim/pkg/solana"
)

var transferInstructionDiscriminator = []byte{
	163, 52, 200, 231, 140, 3, 69, 186,
}

// TransferInstructionSize is the exact payload size of a transfer. Proof
// nodes are carried purely as trailing accounts, never as payload bytes.
const TransferInstructionSize = 8 + // discriminator
	LeafArgsSize // root, dataHash, creatorHash, nonce, index

type TransferInstructionAccounts struct {
	TreeAuthority ed25519.PublicKey
	LeafOwner     ed25519.PublicKey
	LeafDelegate  ed25519.PublicKey
	NewLeafOwner  ed25519.PublicKey
	MerkleTree    ed25519.PublicKey
}

// NewTransferInstruction encodes a leaf transfer.
//
// Accounts expected by the on-chain program, in order:
//
//	0. `[]`         Tree authority (PDA of the merkle tree)
//	1. `[signer]`   Leaf owner
//	2. `[signer]`   Leaf delegate (normally the owner)
//	3. `[]`         New leaf owner
//	4. `[writable]` Merkle tree account
//	5. `[]`         Log wrapper (noop) program
//	6. `[]`         Account compression program
//	7+ `[]`         Proof nodes, leaf to root
func NewTransferInstruction(
	accounts *TransferInstructionAccounts,
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
	data := make([]byte, TransferInstructionSize)
	putDiscriminator(data, transferInstructionDiscriminator, &offset)
	putLeafArgs(data, args, &offset)

	if offset != TransferInstructionSize {
		return solana.Instruction{}, ErrInvalidProof
	}

	metas := []solana.AccountMeta{
		solana.NewReadonlyAccountMeta(accounts.TreeAuthority, false),
		solana.NewReadonlyAccountMeta(accounts.LeafOwner, true),
		solana.NewReadonlyAccountMeta(accounts.LeafDelegate, true),
		solana.NewReadonlyAccountMeta(accounts.NewLeafOwner, false),
		solana.NewAccountMeta(accounts.MerkleTree, false),
		solana.NewReadonlyAccountMeta(SPL_NOOP_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SPL_ACCOUNT_COMPRESSION_PROGRAM_ID, false),
	}
	for _, node := range proof {
		metas = append(metas, solana.NewReadonlyAccountMeta(node, false))
	}

	return solana.NewInstruction(PROGRAM_ID, data, metas...), nil
}

// TransferInstructionFromBinary recovers the leaf arguments from a transfer
// payload at their fixed offsets.
func TransferInstructionFromBinary(data []byte) (*LeafArgs, error) {
	if len(data) != TransferInstructionSize {
		return nil, ErrInvalidInstructionData
	}

	var offset int
	var discriminator []byte
	getDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, transferInstructionDiscriminator) {
		return nil, ErrInvalidInstructionData
	}

	var args LeafArgs
	getLeafArgs(data, &args, &offset)
	return &args, nil
}
