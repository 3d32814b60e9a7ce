package indexer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/screamsociety/reclaim/pkg/metrics"
	"github.com/screamsociety/reclaim/pkg/rate"
	"github.com/screamsociety/reclaim/pkg/retry"
	"github.com/screamsociety/reclaim/pkg/retry/backoff"
	"github.com/screamsociety/reclaim/pkg/solana/bubblegum"
)

const (
	// Reference: https://github.com/metaplex-foundation/digital-asset-rpc-infrastructure
	assetNotFoundCode = -32000
)

var (
	errRateLimited  = errors.New("rate limited")
	errServiceError = errors.New("service error")
)

// Resolver resolves the current proof state of a compressed asset.
type Resolver interface {
	// Resolve fetches the asset's leaf state and merkle proof, validates
	// required fields, and gates on the expected owner before returning.
	//
	// Returns ErrProofNotFound, ErrProofIncomplete, ErrOwnershipMismatch,
	// or ErrUnavailable.
	Resolve(ctx context.Context, assetID, expectedOwner ed25519.PublicKey, priority rate.Priority) (*ProofBundle, error)
}

type resolver struct {
	log        *logrus.Entry
	clients    []jsonrpc.RPCClient
	gate       rate.Gate
	strategies []retry.Strategy
}

// NewResolver returns a Resolver backed by one or more DAS endpoints.
// Endpoints are queried in order; a later endpoint is only consulted when
// an earlier one is unreachable or returns an unusable response.
func NewResolver(gate rate.Gate, endpoints ...string) Resolver {
	clients := make([]jsonrpc.RPCClient, len(endpoints))
	for i, endpoint := range endpoints {
		clients[i] = jsonrpc.NewClient(endpoint)
	}

	return &resolver{
		log:     logrus.StandardLogger().WithField("type", "indexer/resolver"),
		clients: clients,
		gate:    gate,
		strategies: []retry.Strategy{
			retry.RetriableErrors(errRateLimited, errServiceError),
			retry.Limit(3),
			retry.Backoff(backoff.Linear(500*time.Millisecond), 5*time.Second),
		},
	}
}

// rawAsset is the getAsset response, tolerating the field name variants
// deployed indexers disagree on.
type rawAsset struct {
	ID        string `json:"id"`
	Tree      string `json:"tree"`
	TreeID    string `json:"tree_id"`
	Ownership struct {
		Owner    string `json:"owner"`
		Delegate string `json:"delegate"`
	} `json:"ownership"`
	Compression struct {
		Compressed  bool   `json:"compressed"`
		Tree        string `json:"tree"`
		TreeID      string `json:"tree_id"`
		DataHash    string `json:"data_hash"`
		CreatorHash string `json:"creator_hash"`
		LeafID      uint64 `json:"leaf_id"`
	} `json:"compression"`
}

func (a *rawAsset) treeID() string {
	for _, candidate := range []string{a.Compression.Tree, a.Compression.TreeID, a.Tree, a.TreeID} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// rawProof is the getAssetProof response.
type rawProof struct {
	Root   string   `json:"root"`
	Proof  []string `json:"proof"`
	Tree   string   `json:"tree"`
	TreeID string   `json:"tree_id"`
}

func (p *rawProof) treeID() string {
	for _, candidate := range []string{p.Tree, p.TreeID} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (r *resolver) Resolve(ctx context.Context, assetID, expectedOwner ed25519.PublicKey, priority rate.Priority) (*ProofBundle, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDuration(ctx, "indexer/resolve_duration", time.Since(start))
	}()

	var lastErr error
	for i, rpcClient := range r.clients {
		bundle, err := r.resolveAgainst(ctx, rpcClient, assetID, expectedOwner, priority)
		switch {
		case err == nil:
			return bundle, nil
		case errors.Is(err, ErrProofNotFound), errors.Is(err, ErrOwnershipMismatch):
			// Authoritative answers aren't second-guessed by falling
			// through to another endpoint.
			return nil, err
		default:
			r.log.WithError(err).WithField("endpoint", i).Warn("endpoint failed to resolve asset")
			lastErr = err
		}
	}

	if lastErr == nil {
		return nil, errors.Wrap(ErrUnavailable, "no endpoints configured")
	}
	if errors.Is(lastErr, ErrProofIncomplete) {
		return nil, lastErr
	}
	return nil, errors.Wrap(ErrUnavailable, lastErr.Error())
}

func (r *resolver) resolveAgainst(ctx context.Context, rpcClient jsonrpc.RPCClient, assetID, expectedOwner ed25519.PublicKey, priority rate.Priority) (*ProofBundle, error) {
	encodedAsset := base58.Encode(assetID)

	var asset rawAsset
	if err := r.call(ctx, rpcClient, priority, &asset, "getAsset", map[string]interface{}{"id": encodedAsset}); err != nil {
		return nil, err
	}

	var proof rawProof
	if err := r.call(ctx, rpcClient, priority, &proof, "getAssetProof", map[string]interface{}{"id": encodedAsset}); err != nil {
		return nil, err
	}

	bundle, err := mergeBundle(assetID, &asset, &proof)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(bundle.Owner, expectedOwner) {
		return nil, errors.Wrapf(ErrOwnershipMismatch, "owner is %s", base58.Encode(bundle.Owner))
	}

	return bundle, nil
}

func (r *resolver) call(ctx context.Context, rpcClient jsonrpc.RPCClient, priority rate.Priority, out interface{}, method string, params ...interface{}) error {
	strategies := append([]retry.Strategy{retry.IfContextAlive(ctx)}, r.strategies...)
	_, err := retry.Retry(
		func() error {
			// Every attempt consumes a token, retries included, so a
			// rate limited upstream is never hammered past the gate.
			if err := r.gate.Acquire(ctx, priority); err != nil {
				return err
			}

			err := rpcClient.CallFor(out, method, params...)
			if err == nil {
				return nil
			}

			return r.handleRpcError(method, err)
		},
		strategies...,
	)

	return err
}

func (r *resolver) handleRpcError(method string, err error) error {
	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return errors.Wrap(errServiceError, err.Error())
	}
	if rpcErr.Code == 429 {
		r.log.WithField("method", method).Error("rate limited")
		return errRateLimited
	}
	if rpcErr.Code >= 500 {
		return errServiceError
	}
	if rpcErr.Code == assetNotFoundCode || strings.Contains(strings.ToLower(rpcErr.Message), "not found") {
		return ErrProofNotFound
	}

	return err
}

// mergeBundle combines the two indexer surfaces into a ProofBundle,
// rejecting responses that are internally inconsistent or missing a
// required field.
func mergeBundle(assetID ed25519.PublicKey, asset *rawAsset, proof *rawProof) (*ProofBundle, error) {
	if !asset.Compression.Compressed {
		return nil, errors.Wrap(ErrProofIncomplete, "asset is not compressed")
	}

	assetTree := asset.treeID()
	proofTree := proof.treeID()
	if assetTree == "" && proofTree == "" {
		return nil, errors.Wrap(ErrProofIncomplete, "no tree id on either surface")
	}
	if assetTree != "" && proofTree != "" && assetTree != proofTree {
		return nil, errors.Wrapf(ErrProofIncomplete, "tree id mismatch between surfaces (%s != %s)", assetTree, proofTree)
	}

	encodedTree := assetTree
	if encodedTree == "" {
		encodedTree = proofTree
	}

	treeID, err := decodeKey(encodedTree)
	if err != nil {
		return nil, errors.Wrap(ErrProofIncomplete, "invalid tree id")
	}

	bundle := &ProofBundle{
		AssetID:   assetID,
		TreeID:    treeID,
		LeafIndex: asset.Compression.LeafID,
	}

	if bundle.Root, err = decodeHash(proof.Root); err != nil {
		return nil, errors.Wrap(ErrProofIncomplete, "invalid root")
	}
	if bundle.DataHash, err = decodeHash(asset.Compression.DataHash); err != nil {
		return nil, errors.Wrap(ErrProofIncomplete, "invalid data hash")
	}
	if bundle.CreatorHash, err = decodeHash(asset.Compression.CreatorHash); err != nil {
		return nil, errors.Wrap(ErrProofIncomplete, "invalid creator hash")
	}

	if len(proof.Proof) == 0 {
		return nil, errors.Wrap(ErrProofIncomplete, "empty proof path")
	}
	bundle.ProofNodes = make([]ed25519.PublicKey, len(proof.Proof))
	for i, node := range proof.Proof {
		if bundle.ProofNodes[i], err = decodeKey(node); err != nil {
			return nil, errors.Wrapf(ErrProofIncomplete, "invalid proof node at %d", i)
		}
	}

	if bundle.Owner, err = decodeKey(asset.Ownership.Owner); err != nil {
		return nil, errors.Wrap(ErrProofIncomplete, "invalid owner")
	}
	if asset.Ownership.Delegate != "" {
		if bundle.Delegate, err = decodeKey(asset.Ownership.Delegate); err != nil {
			return nil, errors.Wrap(ErrProofIncomplete, "invalid delegate")
		}
	}

	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	return bundle, nil
}

func decodeKey(value string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(value)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid key length: %d", len(raw))
	}
	return raw, nil
}

func decodeHash(value string) (hash bubblegum.Hash, err error) {
	raw, err := base58.Decode(value)
	if err != nil {
		return hash, err
	}
	if len(raw) != len(hash) {
		return hash, errors.Errorf("invalid hash length: %d", len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}
