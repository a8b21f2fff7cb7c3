package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/addressbook"
	"github.com/arnac-io/opensafeapi/pkg/api"
	"github.com/arnac-io/opensafeapi/pkg/app"
	"github.com/arnac-io/opensafeapi/pkg/blockchain"
	"github.com/arnac-io/opensafeapi/pkg/chain"
	"github.com/arnac-io/opensafeapi/pkg/chainstate"
	"github.com/arnac-io/opensafeapi/pkg/collector"
	"github.com/arnac-io/opensafeapi/pkg/config"
	"github.com/arnac-io/opensafeapi/pkg/emulation"
	"github.com/arnac-io/opensafeapi/pkg/keystore"
	"github.com/arnac-io/opensafeapi/pkg/proposals"
	"github.com/arnac-io/opensafeapi/pkg/pusher/sources"
	"github.com/arnac-io/opensafeapi/pkg/sentry"
)

func main() {
	cfg := config.Load()
	log := app.Logger(cfg.App.LogLevel)
	sentry.Init(cfg.App.SentryDSN)
	defer sentry.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal("failed to connect to node", zap.String("url", cfg.Chain.RPCURL), zap.Error(err))
	}

	book, err := addressbook.NewAddressBook(log, cfg.App.AddressBookPath)
	if err != nil {
		log.Fatal("failed to load address book", zap.Error(err))
	}
	go book.Run(ctx, time.Minute)

	safes := append([]common.Address{}, cfg.App.Safes...)
	for _, s := range book.Safes() {
		safes = append(safes, s.Address)
	}
	storage, err := chain.NewStorage(log, client,
		chain.WithPreloadSafes(safes),
		chain.WithCacheTTL(cfg.Chain.StateCacheTTL))
	if err != nil {
		log.Fatal("failed to create chain storage", zap.Error(err))
	}

	state := chainstate.NewChainState(log, client)
	go state.Run(ctx, cfg.Chain.EventsPollInterval)

	keys, err := keystore.Open(cfg.Keystore.Dir, cfg.Keystore.Passphrase)
	if err != nil {
		log.Fatal("failed to open keystore", zap.Error(err))
	}
	store, err := proposals.Open(cfg.Storage.ProposalsDBPath)
	if err != nil {
		log.Fatal("failed to open proposals db", zap.String("path", cfg.Storage.ProposalsDBPath), zap.Error(err))
	}

	if cfg.Relayer.Key == "" {
		log.Fatal("RELAYER_KEY is required")
	}
	relayerKey, err := crypto.HexToECDSA(cfg.Relayer.Key)
	if err != nil {
		log.Fatal("invalid RELAYER_KEY", zap.Error(err))
	}
	submissions := make(chan blockchain.Submission, 16)
	relayer := blockchain.NewRelayer(log, client, relayerKey, big.NewInt(cfg.Chain.ChainID), cfg.Relayer.RPS,
		[]chan blockchain.Submission{submissions})
	go relayer.Run(ctx)

	dispatcher := sources.NewDispatcher(log)
	dispatcher.Run(ctx)
	go dispatcher.ConsumeSubmissions(ctx, submissions)
	watcher := sources.NewLogWatcher(log, client, storage, dispatcher)
	go watcher.Run(ctx, cfg.Chain.EventsPollInterval)

	coll := collector.New(log, storage, store, emulation.NewEmulator(log, client), relayer,
		collector.WithSigner(keys),
		collector.WithPublisher(dispatcher))

	h, err := api.NewHandler(log,
		api.WithStorage(storage),
		api.WithCollector(coll),
		api.WithAddressBook(book),
		api.WithChainState(state),
		api.WithRelayer(relayer.Address()))
	if err != nil {
		log.Fatal("failed to create api handler", zap.Error(err))
	}
	server, err := api.NewServer(log, h, fmt.Sprintf(":%v", cfg.API.Port),
		api.WithEventSource(dispatcher),
		api.WithRateLimit(cfg.API.RPS, cfg.API.Burst))
	if err != nil {
		log.Fatal("failed to create api server", zap.Error(err))
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%v", cfg.App.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	log.Info("opensafeapi started",
		zap.Int("port", cfg.API.Port),
		zap.Int("safes", len(safes)),
		zap.Stringer("relayer", relayer.Address()),
		zap.Int("owner_keys", len(keys.Addresses())))
	go server.Run()

	<-ctx.Done()
	log.Info("shutting down")
	err = app.Shutdown(log,
		app.Closer{Name: "api", Close: server.Shutdown},
		app.Closer{Name: "metrics", Close: metricsServer.Shutdown},
		app.Closer{Name: "proposals", Close: func(context.Context) error { return store.Close() }},
		app.Closer{Name: "node", Close: func(context.Context) error { client.Close(); return nil }},
	)
	if err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
