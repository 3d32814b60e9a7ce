package bubblegum

// HashSize is the size of leaf and root hashes in a concurrent merkle tree.
const HashSize = 32

// Hash is a 32 byte merkle node, leaf data hash, or creator list hash.
type Hash [HashSize]byte

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// LeafArgs is the set of values the on-chain program needs to reconstruct
// and verify a leaf without storing it. The nonce and index both carry the
// leaf's position in the tree and are numerically identical for this
// operation family; the program consumes them at separate offsets.
type LeafArgs struct {
	Root        Hash
	DataHash    Hash
	CreatorHash Hash
	Nonce       uint64
	Index       uint64
}

// LeafArgsSize is the serialized size of LeafArgs.
const LeafArgsSize = 3*HashSize + 8 + 8

func putLeafArgs(dst []byte, args *LeafArgs, offset *int) {
	putHash(dst, args.Root, offset)
	putHash(dst, args.DataHash, offset)
	putHash(dst, args.CreatorHash, offset)
	putUint64(dst, args.Nonce, offset)
	putUint64(dst, args.Index, offset)
}

func getLeafArgs(src []byte, args *LeafArgs, offset *int) {
	getHash(src, &args.Root, offset)
	getHash(src, &args.DataHash, offset)
	getHash(src, &args.CreatorHash, offset)
	getUint64(src, &args.Nonce, offset)
	getUint64(src, &args.Index, offset)
}

// validateLeafArgs rejects any leaf argument set missing a required hash.
// A zeroed hash is never a legitimate value here; defaulting one in would
// produce an instruction that deterministically fails on chain with an
// opaque program error.
func validateLeafArgs(args *LeafArgs) error {
	if args == nil {
		return ErrInvalidProof
	}
	if args.Root.IsZero() || args.DataHash.IsZero() || args.CreatorHash.IsZero() {
		return ErrInvalidProof
	}
	return nil
}
