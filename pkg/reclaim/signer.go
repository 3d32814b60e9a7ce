package reclaim

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"

	"github.com/screamsociety/reclaim/pkg/solana"
)

// MaxSigningTime bounds how long a submission waits for a signature. A
// hardware wallet prompt that sits unanswered should fail the attempt, not
// wedge the batch.
const MaxSigningTime = 2 * time.Minute

// ErrSigningRejected indicates the signer declined to sign.
var ErrSigningRejected = errors.New("reclaim: signing rejected")

// Signer authorizes transactions for a single public key. Implementations
// may prompt a human, so SignTransaction can block; it must respect context
// cancellation.
type Signer interface {
	PublicKey() ed25519.PublicKey
	SignTransaction(ctx context.Context, txn *solana.Transaction) error
}

type keypairSigner struct {
	key ed25519.PrivateKey
}

// NewKeypairSigner returns a Signer backed by an in memory private key.
func NewKeypairSigner(key ed25519.PrivateKey) Signer {
	return &keypairSigner{key: key}
}

func (s *keypairSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *keypairSigner) SignTransaction(_ context.Context, txn *solana.Transaction) error {
	return txn.Sign(s.key)
}

// signWithTimeout runs the signer under the wall clock bound, regardless of
// how much budget the surrounding context has left.
func signWithTimeout(ctx context.Context, signer Signer, txn *solana.Transaction) error {
	signCtx, cancel := context.WithTimeout(ctx, MaxSigningTime)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- signer.SignTransaction(signCtx, txn)
	}()

	select {
	case err := <-done:
		return err
	case <-signCtx.Done():
		return errors.Wrap(ErrSigningRejected, signCtx.Err().Error())
	}
}
