package bubblegum

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var (
	// PROGRAM_ADDRESS is the mpl-bubblegum compressed NFT program.
	PROGRAM_ADDRESS = mustBase58Decode("BGUMAp9Gq7iTEuizy4pqaxsTyUCBK68MDJ8V8N3eg3aB")
	PROGRAM_ID      = ed25519.PublicKey(PROGRAM_ADDRESS)

	// SPL_ACCOUNT_COMPRESSION_PROGRAM_ID verifies the merkle path re-derived
	// from the trailing proof accounts.
	SPL_ACCOUNT_COMPRESSION_PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("cmtDvXumGCrqC1Age74AVPhSRVXJMd8PJS91L8KbNCK"))

	// SPL_NOOP_PROGRAM_ID is the log wrapper the compression program emits
	// leaf change events through.
	SPL_NOOP_PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV"))

	// INCINERATOR_ID is the canonical sink address used when a leaf is
	// traded away rather than sent to a real destination.
	INCINERATOR_ID = ed25519.PublicKey(mustBase58Decode("1nc1nerator11111111111111111111111111111111"))
)

// MaxProofAccounts is the largest number of proof node accounts a single
// transaction can carry alongside the transfer instruction and compute
// budget adjustments. Trees deeper than this need a canopy-shortened proof
// from the indexer; a locally truncated full proof will not verify.
const MaxProofAccounts = 24

var (
	ErrInvalidProof         = errors.New("bubblegum: invalid proof")
	ErrUnsupportedTreeDepth = errors.New("bubblegum: unsupported tree depth")

	ErrInvalidInstructionData = errors.New("bubblegum: invalid instruction data")
)

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
