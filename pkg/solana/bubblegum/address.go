package bubblegum

import (
	"crypto/ed25519"

	"github.com/screamsociety/reclaim/pkg/solana"
)

// GetTreeAuthorityAddress derives the tree authority PDA for a merkle tree.
//
// The derivation is a pure function of the tree address and the program id.
// Indexer metadata sometimes carries an authority field; it is advisory
// only, since the on-chain program re-derives this address itself.
func GetTreeAuthorityAddress(merkleTree ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		merkleTree,
	)
}
