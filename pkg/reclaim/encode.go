package reclaim

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/screamsociety/reclaim/pkg/indexer"
	"github.com/screamsociety/reclaim/pkg/solana"
	"github.com/screamsociety/reclaim/pkg/solana/bubblegum"
)

// buildInstruction encodes the resolved request as a bubblegum instruction.
// The tree authority is always derived from the tree address, never read
// from indexer metadata.
func buildInstruction(req *TransferRequest) (solana.Instruction, error) {
	if err := req.Proof.Validate(); err != nil {
		return solana.Instruction{}, err
	}
	if !bytes.Equal(req.Proof.Owner, req.Signer) {
		return solana.Instruction{}, errors.Wrap(indexer.ErrOwnershipMismatch, "proof owner does not match signer")
	}

	treeAuthority, _, err := bubblegum.GetTreeAuthorityAddress(req.Proof.TreeID)
	if err != nil {
		return solana.Instruction{}, errors.Wrap(err, "failed to derive tree authority")
	}

	// The delegate slot signs alongside the owner. A foreign delegate
	// would require its own signature, which a single signer submission
	// can't provide, so the owner always occupies both slots.
	if len(req.Proof.Delegate) != 0 && !bytes.Equal(req.Proof.Delegate, req.Signer) {
		return solana.Instruction{}, errors.Wrap(indexer.ErrOwnershipMismatch, "asset is delegated to a foreign authority")
	}
	leafDelegate := req.Signer

	args := &bubblegum.LeafArgs{
		Nonce: req.Proof.LeafIndex,
		Index: req.Proof.LeafIndex,
	}
	copy(args.Root[:], req.Proof.Root[:])
	copy(args.DataHash[:], req.Proof.DataHash[:])
	copy(args.CreatorHash[:], req.Proof.CreatorHash[:])

	switch req.Mode {
	case ModeBurn:
		return bubblegum.NewBurnInstruction(
			&bubblegum.BurnInstructionAccounts{
				TreeAuthority: treeAuthority,
				LeafOwner:     req.Signer,
				LeafDelegate:  leafDelegate,
				MerkleTree:    req.Proof.TreeID,
			},
			args,
			req.Proof.ProofNodes,
		)
	case ModeTransfer:
		destination := req.Destination
		if len(destination) == 0 {
			// Trading a leaf away without a recipient parks it on the
			// incinerator.
			destination = bubblegum.INCINERATOR_ID
		}

		return bubblegum.NewTransferInstruction(
			&bubblegum.TransferInstructionAccounts{
				TreeAuthority: treeAuthority,
				LeafOwner:     req.Signer,
				LeafDelegate:  leafDelegate,
				NewLeafOwner:  destination,
				MerkleTree:    req.Proof.TreeID,
			},
			args,
			req.Proof.ProofNodes,
		)
	default:
		return solana.Instruction{}, errors.Errorf("unsupported mode: %d", req.Mode)
	}
}
