// Command bot runs the copy-trading daemon: it polls the configured source
// wallets, mirrors their position changes through the CLOB at a configured
// scale, and serves the read-only status API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copytrader/clob/client"
	"github.com/betbot/copytrader/clob/types"
	"github.com/betbot/copytrader/internal/execution"
	"github.com/betbot/copytrader/internal/journal"
	"github.com/betbot/copytrader/internal/metrics"
	"github.com/betbot/copytrader/internal/server"
	"github.com/betbot/copytrader/internal/services"
	"github.com/betbot/copytrader/internal/store"
	"github.com/betbot/copytrader/internal/stream"
	"github.com/betbot/copytrader/internal/watcher"
	"github.com/betbot/copytrader/pkg/config"
	"github.com/betbot/copytrader/pkg/logger"
	"github.com/betbot/copytrader/pkg/sdk/dataapi"
	"github.com/betbot/copytrader/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "config file path (.yaml/.yml)")
	dryRun := flag.Bool("dry-run", false, "force dry-run mode regardless of config")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	// A missing .env file is fine; the environment may carry everything.
	_ = godotenv.Load()

	if err := logger.InitDefault(); err != nil {
		panic(fmt.Sprintf("init logging: %v", err))
	}

	if *configPath != "" {
		config.SetConfigPath(*configPath)
		logrus.Infof("using config file: %s", *configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Copy.DryRun = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logrus.Errorf("invalid config: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}); err != nil {
		logrus.Errorf("init logging: %v", err)
		os.Exit(1)
	}

	// One process per store. Two daemons sharing a wallet would race each
	// other's dedup records.
	lock, err := acquireLock(cfg.Store.Path + ".lock")
	if err != nil {
		logrus.Errorf("another instance is already running: %v", err)
		os.Exit(1)
	}
	defer lock.release()

	proxyURL := ""
	if cfg.Proxy != nil {
		proxyURL = fmt.Sprintf("http://%s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
		os.Setenv("HTTP_PROXY", proxyURL)
		os.Setenv("HTTPS_PROXY", proxyURL)
		logrus.Infof("routing outbound HTTP through %s", proxyURL)
	} else {
		os.Unsetenv("HTTP_PROXY")
		os.Unsetenv("HTTPS_PROXY")
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	mgr := shutdown.NewManager()

	// Durable stores. The daemon still runs without them, with weaker
	// restart guarantees, so failures degrade instead of aborting.
	var st store.Store
	if bst, err := store.OpenBadger(cfg.Store.Path); err != nil {
		logrus.Errorf("open store at %s: %v (running without durable dedup)", cfg.Store.Path, err)
		st = store.NewMemoryStore()
	} else {
		st = bst
		mgr.OnShutdown(func(context.Context) {
			if err := bst.Close(); err != nil {
				logrus.Errorf("close store: %v", err)
			}
		})
	}

	jr, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		logrus.Warnf("open journal at %s: %v (trade audit disabled)", cfg.Journal.Path, err)
		jr = nil
	} else {
		mgr.OnShutdown(func(context.Context) {
			if err := jr.Close(); err != nil {
				logrus.Errorf("close journal: %v", err)
			}
		})
	}

	// The CLOB client is only needed for live orders. Dry-run and disabled
	// modes run without a wallet key.
	var submitter execution.Submitter
	if cfg.Copy.Enabled && !cfg.Copy.DryRun {
		privateKey, err := resolveSigner(cfg.Wallet)
		if err != nil {
			logrus.Errorf("wallet: %v", err)
			os.Exit(1)
		}

		tempClient := client.NewClient(client.DefaultHost, types.ChainPolygon, privateKey, nil)
		creds, err := tempClient.CreateOrDeriveAPIKey(rootCtx, nil)
		if err != nil {
			logrus.Errorf("derive api credentials: %v", err)
			os.Exit(1)
		}
		logrus.Infof("api credentials ready: key=%s...", creds.Key[:8])
		clobClient := client.NewClient(client.DefaultHost, types.ChainPolygon, privateKey, creds)

		sigType := types.SignatureTypeEOA
		if cfg.Wallet.FunderAddress != "" {
			sigType = types.SignatureTypeMagic
			logrus.Infof("orders funded by proxy wallet %s", cfg.Wallet.FunderAddress)
		}
		submitter = execution.NewClobSubmitter(clobClient, cfg.Wallet.FunderAddress, sigType)
		logCollateral(rootCtx, clobClient, sigType)
	}
	if cfg.Copy.DryRun {
		logrus.Warn("dry-run mode: trades are recorded, never sent")
	}

	engine := execution.NewEngine(st, jr, submitter, execution.Options{
		DryRun:     cfg.Copy.DryRun,
		MaxRetries: cfg.Copy.MaxRetryAttempts,
		RetryDelay: cfg.Copy.RetryDelay,
	})

	fetcher := watcher.NewDataAPIFetcher(dataapi.NewClient(os.Getenv("DATA_API_HOST")))
	svc := services.NewCopyService(cfg, fetcher, engine, st, jr)
	if err := svc.Start(rootCtx); err != nil {
		logrus.Errorf("start copy service: %v", err)
		os.Exit(1)
	}

	var sw *stream.Watcher
	if cfg.Stream.Enabled {
		sw = stream.New(cfg.Stream.URL, proxyURL, sourceAddresses(cfg), svc)
		go sw.Run(rootCtx)
		logrus.Infof("activity stream enabled: %s", cfg.Stream.URL)
	}

	apiServer := server.New(svc, st, jr, sw)
	if _, err := apiServer.StartAsync(rootCtx, cfg.Server.Addr); err != nil {
		logrus.Errorf("api server on %s: %v (continuing without it)", cfg.Server.Addr, err)
	}

	if addr := pprofAddr(); addr != "" {
		if _, err := metrics.StartAsync(rootCtx, addr); err != nil {
			logrus.Errorf("metrics/pprof on %s: %v", addr, err)
		} else {
			logrus.Infof("metrics/pprof listening on %s (expvar:/debug/vars, pprof:/debug/pprof)", addr)
		}
	}

	logrus.Info("copytrader started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("shutdown signal received")
	rootCancel()

	// The service stops first so no execution is mid-flight when the
	// stores close underneath it.
	svc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)

	logrus.Info("copytrader stopped")
}

func sourceAddresses(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		out = append(out, src.Address)
	}
	return out
}

// logCollateral reports the wallet's spendable USDC at startup. A failed
// lookup is logged and trading proceeds.
func logCollateral(ctx context.Context, c *client.Client, sigType types.SignatureType) {
	resp, err := c.GetBalanceAllowance(ctx, &types.BalanceAllowanceParams{
		AssetType:     types.AssetTypeCollateral,
		SignatureType: &sigType,
	})
	if err != nil {
		logrus.Warnf("collateral lookup: %v", err)
		return
	}
	raw, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		logrus.Warnf("collateral lookup: unparseable balance %q", resp.Balance)
		return
	}
	// The endpoint reports micro USDC.
	usdc := raw.Shift(-6)
	if usdc.IsZero() {
		logrus.Warn("collateral balance is zero, live orders will be rejected")
		return
	}
	logrus.Infof("collateral balance: %s USDC", usdc.StringFixed(2))
}

func pprofAddr() string {
	if addr := os.Getenv("COPYTRADER_PPROF_ADDR"); addr != "" {
		return addr
	}
	return os.Getenv("METRICS_ADDR")
}
