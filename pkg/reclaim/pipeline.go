package reclaim

import (
	"context"
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"github.com/screamsociety/reclaim/pkg/indexer"
	"github.com/screamsociety/reclaim/pkg/rate"
	"github.com/screamsociety/reclaim/pkg/solana"
)

// Pipeline chains resolution, encoding, and submission for single assets.
type Pipeline struct {
	log      *logrus.Entry
	resolver indexer.Resolver
	driver   *Driver
}

// NewPipeline returns a Pipeline.
func NewPipeline(resolver indexer.Resolver, driver *Driver) *Pipeline {
	return &Pipeline{
		log:      logrus.StandardLogger().WithField("type", "reclaim/pipeline"),
		resolver: resolver,
		driver:   driver,
	}
}

// Process runs one asset end to end. The proof is resolved fresh inside
// each submission attempt, so a rebuild after blockhash expiry observes
// the tree's current root.
func (p *Pipeline) Process(ctx context.Context, asset AssetRef, signer Signer, destination ed25519.PublicKey, mode Mode, priority rate.Priority) *TransferResult {
	build := func(ctx context.Context) (solana.Instruction, error) {
		proof, err := p.resolver.Resolve(ctx, asset.AssetID, signer.PublicKey(), priority)
		if err != nil {
			return solana.Instruction{}, err
		}

		return buildInstruction(&TransferRequest{
			Asset:       asset,
			Proof:       proof,
			Signer:      signer.PublicKey(),
			Destination: destination,
			Mode:        mode,
		})
	}

	result := p.driver.Submit(ctx, asset, build, signer)

	log := p.log.WithFields(logrus.Fields{
		"id":      result.ID,
		"mode":    mode,
		"outcome": result.Outcome,
	})
	if result.Succeeded() {
		log.WithField("signature", result.Signature).Info("asset processed")
	} else {
		log.WithField("error_kind", result.ErrorKind).Warn("asset processing failed")
	}

	return result
}
