// Command relayer runs the cross-chain bridge relayer daemon: two
// Supervisors (L1, L2), each pairing a ChainClient with an EventIngestor and
// a HistoricalBackfiller, dispatching deduplicated intents to a shared
// Relayer.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/apiserver"
	"github.com/pro123908/pepu-bridge-server/internal/backfill"
	"github.com/pro123908/pepu-bridge-server/internal/chainclient"
	"github.com/pro123908/pepu-bridge-server/internal/config"
	"github.com/pro123908/pepu-bridge-server/internal/contracts"
	"github.com/pro123908/pepu-bridge-server/internal/dedup"
	"github.com/pro123908/pepu-bridge-server/internal/ingest"
	"github.com/pro123908/pepu-bridge-server/internal/metrics"
	"github.com/pro123908/pepu-bridge-server/internal/relayer"
	"github.com/pro123908/pepu-bridge-server/internal/signer"
	"github.com/pro123908/pepu-bridge-server/internal/supervisor"
	"github.com/pro123908/pepu-bridge-server/internal/txstore"
)

// l1BridgeAddrEnv / l2BridgeAddrEnv name the bridge contract addresses;
// these are deployment-specific and, unlike L1_RPC_URL/L2_RPC_URL/
// OWNER_PRIVATE_KEY, spec §6 leaves their sourcing to the deployment, so
// they are read directly rather than threaded through internal/config.
const (
	l1BridgeAddrEnv = "L1_BRIDGE_ADDRESS"
	l2BridgeAddrEnv = "L2_BRIDGE_ADDRESS"
)

func main() {
	flags := config.Flags()
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		// No logger yet; a missing OWNER_PRIVATE_KEY is fatal-at-boot per
		// AMBIENT STACK, so stderr is the only channel available.
		fmt.Fprintln(os.Stderr, "relayer: fatal:", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.LogLevel)
	defer logger.Sync()
	log := logger.Sugar()

	l1Bridge := common.HexToAddress(os.Getenv(l1BridgeAddrEnv))
	l2Bridge := common.HexToAddress(os.Getenv(l2BridgeAddrEnv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := buildStore(ctx, log)
	defer store.Close(context.Background())

	m := metrics.New()

	dedupIndex := dedup.New()
	seedDedupIndex(ctx, store, dedupIndex, m, log)

	bridgeABI, err := contracts.BridgeABI()
	if err != nil {
		log.Fatalw("failed to parse bridge abi", "err", err)
	}

	l1Client, err := newClient(ctx, cfg.L1RPCURL, cfg.PrivateKey, chainclient.BridgeBinding{
		Contract: l1Bridge, ABI: bridgeABI, EventName: contracts.EventAssetsBuy,
	}, "L1", m, log)
	if err != nil {
		log.Fatalw("failed to construct L1 chain client", "err", err)
	}
	l2Client, err := newClient(ctx, cfg.L2RPCURL, cfg.PrivateKey, chainclient.BridgeBinding{
		Contract: l2Bridge, ABI: bridgeABI, EventName: contracts.EventAssetsSold,
	}, "L2", m, log)
	if err != nil {
		log.Fatalw("failed to construct L2 chain client", "err", err)
	}

	sign, err := signer.New(cfg.PrivateKey)
	if err != nil {
		log.Fatalw("failed to construct signer", "err", err)
	}

	rel, err := relayer.New(relayer.Config{
		L1Client:   l1Client,
		L2Client:   l2Client,
		L1Bridge:   l1Bridge,
		L2Bridge:   l2Bridge,
		Store:      store,
		DedupIndex: dedupIndex,
		Signer:     sign,
		Metrics:    m,
		Log:        log,
	})
	if err != nil {
		log.Fatalw("failed to construct relayer", "err", err)
	}

	l1Ingestor := ingest.New("L1", dedupIndex, store, rel.RelayBuy, m, log)
	l2Ingestor := ingest.New("L2", dedupIndex, store, rel.RelaySell, m, log)

	l1Supervisor := supervisor.New("L1", func(ctx context.Context) (chainclient.ChainClient, error) {
		return newClient(ctx, cfg.L1RPCURL, cfg.PrivateKey, chainclient.BridgeBinding{
			Contract: l1Bridge, ABI: bridgeABI, EventName: contracts.EventAssetsBuy,
		}, "L1", m, log)
	}, func(event chainclient.Event) { l1Ingestor.Handle(ctx, event) }, log)

	l2Supervisor := supervisor.New("L2", func(ctx context.Context) (chainclient.ChainClient, error) {
		return newClient(ctx, cfg.L2RPCURL, cfg.PrivateKey, chainclient.BridgeBinding{
			Contract: l2Bridge, ABI: bridgeABI, EventName: contracts.EventAssetsSold,
		}, "L2", m, log)
	}, func(event chainclient.Event) { l2Ingestor.Handle(ctx, event) }, log)

	l1Backfiller := backfill.New("L1", l1Client, l1Ingestor.Handle, log)
	l2Backfiller := backfill.New("L2", l2Client, l2Ingestor.Handle, log)

	go l1Supervisor.Start(ctx)
	go l2Supervisor.Start(ctx)
	go l1Backfiller.Run(ctx)
	go l2Backfiller.Run(ctx)

	srv := apiserver.New(store, m.Registry, log)
	httpServer := &http.Server{Addr: ":8080", Handler: srv.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("api server stopped unexpectedly", "err", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	l1Supervisor.Stop()
	l2Supervisor.Stop()
}

func newClient(ctx context.Context, url string, key *ecdsa.PrivateKey, binding chainclient.BridgeBinding, chain string, m *metrics.Metrics, log *zap.SugaredLogger) (chainclient.ChainClient, error) {
	ws, err := chainclient.NewWSChainClient(ctx, url, key, binding, log)
	if err != nil {
		log.Warnw("websocket transport unavailable, continuing with http-only client; streaming disabled", "chain", chain, "err", err)
		httpClient, httpErr := chainclient.NewHTTPChainClient(ctx, url, key, binding, log)
		if httpErr != nil {
			return nil, httpErr
		}
		return chainclient.NewMetricsDecorator(httpClient, chain, m), nil
	}
	return chainclient.NewMetricsDecorator(ws, chain, m), nil
}

func buildStore(ctx context.Context, log *zap.SugaredLogger) txstore.TxStore {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		log.Infow("MONGO_URI not set, running with in-memory TxStore")
		return txstore.NewMemoryStore()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalw("failed to connect to mongo, falling back is not attempted by design", "err", err)
	}

	dbName := os.Getenv("MONGO_DATABASE")
	if dbName == "" {
		dbName = "relayer"
	}
	collName := os.Getenv("MONGO_COLLECTION")
	if collName == "" {
		collName = "relay_records"
	}

	store := txstore.NewMongoStore(client.Database(dbName).Collection(collName))
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatalw("failed to ensure mongo indexes", "err", err)
	}
	return store
}

func seedDedupIndex(ctx context.Context, store txstore.TxStore, idx *dedup.Index, m *metrics.Metrics, log *zap.SugaredLogger) {
	hashes, err := store.AllHashes(ctx)
	if err != nil {
		log.Errorw("failed to seed dedup index from store, starting with an empty index", "err", err)
		return
	}
	idx.Seed(hashes)
	m.SetDedupIndexSize(idx.Size())
	log.Infow("dedup index seeded from durable store", "size", idx.Size())
}

func buildLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if os.Getenv("RELAYER_ENV") == "dev" {
		cfg = zap.NewDevelopmentConfig()
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
