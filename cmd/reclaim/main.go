package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/screamsociety/reclaim/pkg/config/env"
	"github.com/screamsociety/reclaim/pkg/indexer"
	"github.com/screamsociety/reclaim/pkg/rate"
	"github.com/screamsociety/reclaim/pkg/reclaim"
	"github.com/screamsociety/reclaim/pkg/solana"
)

var (
	rpcEndpointConfig      = env.NewStringConfig("RECLAIM_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com")
	indexerEndpointsConfig = env.NewStringConfig("RECLAIM_INDEXER_ENDPOINTS", "")
	indexerRPSConfig       = env.NewFloat64Config("RECLAIM_INDEXER_RPS", 10)
	concurrencyConfig      = env.NewUint64Config("RECLAIM_CONCURRENCY", 4)
	computeUnitPriceConfig = env.NewUint64Config("RECLAIM_COMPUTE_UNIT_PRICE", 0)
	verboseConfig          = env.NewBoolConfig("RECLAIM_VERBOSE", false)
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		keyFlag         = flag.String("key", "", "base58 encoded ed25519 private key of the leaf owner")
		modeFlag        = flag.String("mode", "transfer", "transfer or burn")
		destinationFlag = flag.String("destination", "", "destination wallet for transfers (defaults to the incinerator)")
	)
	flag.Parse()

	ctx := context.Background()

	if verboseConfig.Get(ctx) {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var mode reclaim.Mode
	switch *modeFlag {
	case "transfer":
		mode = reclaim.ModeTransfer
	case "burn":
		mode = reclaim.ModeBurn
	default:
		return fmt.Errorf("unsupported mode: %s", *modeFlag)
	}

	if *keyFlag == "" {
		return fmt.Errorf("-key is required")
	}
	rawKey, err := base58.Decode(*keyFlag)
	if err != nil || len(rawKey) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid private key")
	}
	signer := reclaim.NewKeypairSigner(ed25519.PrivateKey(rawKey))

	var destination ed25519.PublicKey
	if *destinationFlag != "" {
		destination, err = base58.Decode(*destinationFlag)
		if err != nil || len(destination) != ed25519.PublicKeySize {
			return fmt.Errorf("invalid destination address")
		}
	}

	if flag.NArg() == 0 {
		return fmt.Errorf("at least one asset id is required")
	}
	assets := make([]reclaim.AssetRef, flag.NArg())
	for i, arg := range flag.Args() {
		assetID, err := base58.Decode(arg)
		if err != nil || len(assetID) != ed25519.PublicKeySize {
			return fmt.Errorf("invalid asset id: %s", arg)
		}
		assets[i] = reclaim.AssetRef{AssetID: assetID}
	}

	indexerEndpoints := strings.Split(indexerEndpointsConfig.Get(ctx), ",")
	if len(indexerEndpoints) == 1 && indexerEndpoints[0] == "" {
		return fmt.Errorf("RECLAIM_INDEXER_ENDPOINTS is required")
	}

	client := solana.New(rpcEndpointConfig.Get(ctx))
	gate := rate.NewTokenGate(xrate.Limit(indexerRPSConfig.Get(ctx)), 1)
	resolver := indexer.NewResolver(gate, indexerEndpoints...)
	driver := reclaim.NewDriver(client, &reclaim.DriverConfig{
		ComputeUnitPrice: computeUnitPriceConfig.Get(ctx),
	})

	owner := signer.PublicKey()
	balanceBefore, err := client.GetBalance(owner)
	if err != nil {
		logrus.WithError(err).Warn("failed to fetch starting balance")
	}

	batch := reclaim.NewBatch(
		reclaim.NewPipeline(resolver, driver),
		int64(concurrencyConfig.Get(ctx)),
	)
	results := batch.Process(ctx, assets, signer, destination, mode)

	// Give assumed confirmations one more chance to settle before
	// reporting them.
	for i, result := range results {
		results[i] = driver.Verify(ctx, result)
	}

	var succeeded int
	for i, result := range results {
		fmt.Printf("%s: %s", base58.Encode(assets[i].AssetID), result.Outcome)
		if result.Succeeded() {
			succeeded++
			fmt.Printf(" %s", result.ExplorerURL())
		} else {
			fmt.Printf(" (%s) %s", result.ErrorKind, result.Message)
		}
		fmt.Println()
	}

	if balanceAfter, err := client.GetBalance(owner); err == nil && balanceAfter > balanceBefore {
		fmt.Printf("reclaimed %d lamports\n", balanceAfter-balanceBefore)
	}

	if succeeded != len(results) {
		return fmt.Errorf("%d of %d assets failed", len(results)-succeeded, len(results))
	}
	return nil
}
