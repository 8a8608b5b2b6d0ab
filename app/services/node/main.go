package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meshchain/ledger/app/services/node/handlers"
	"github.com/meshchain/ledger/foundation/blockchain/genesis"
	"github.com/meshchain/ledger/foundation/events"
	"github.com/meshchain/ledger/foundation/logger"
	"github.com/meshchain/ledger/foundation/node"
)

// build is the git version of this program, set using build flags in the
// makefile.
var build = "develop"

func main() {
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			PublicHost      string        `conf:"default:0.0.0.0:8080" validate:"required,hostname_port"`
			P2PHost         string        `conf:"default:0.0.0.0:9080" validate:"required,hostname_port"`
		}
		Identity struct {
			ID           string `conf:"default:node1" validate:"required"`
			Label        string `conf:"default:Node 1"`
			IP           string `conf:"default:127.0.0.1"`
			URL          string `conf:"default:ws://127.0.0.1:9080"`
			OwnerAddress string `conf:"default:MINER" validate:"required"`
		}
		Chain struct {
			Difficulty         uint     `conf:"default:4"`
			MinDifficulty      uint     `conf:"default:4"`
			FixedReward        uint64   `conf:"default:50"`
			MinEntriesPerBlock int      `conf:"default:2"`
			StoragePath        string   `conf:"default:zblock/chain.db" validate:"required"`
			SeedPeers          []string `conf:"default:"`
			AutoStart          bool     `conf:"default:true"`
		}
		Genesis struct {
			BlockchainName string `conf:"default:meshchain"`
			Timestamp      int64  `conf:"default:1700000000000"`
			Entries        string `conf:"default:Genesis Block"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "meshchain ledger node",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Node Support

	evts := events.NewFeed()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Publish(s)
	}

	n := node.New(node.Config{
		Identity: node.Identity{
			ID:             cfg.Identity.ID,
			Label:          cfg.Identity.Label,
			IP:             cfg.Identity.IP,
			URL:            cfg.Identity.URL,
			P2PPort:        cfg.Web.P2PHost,
			WebServicePort: cfg.Web.PublicHost,
			OwnerAddress:   cfg.Identity.OwnerAddress,
		},
		GenesisConfig: genesis.Config{
			BlockchainName: cfg.Genesis.BlockchainName,
			Timestamp:      cfg.Genesis.Timestamp,
			Entries:        cfg.Genesis.Entries,
			Difficulty:     cfg.Chain.Difficulty,
		},
		Difficulty:         cfg.Chain.Difficulty,
		MinDifficulty:      cfg.Chain.MinDifficulty,
		FixedReward:        cfg.Chain.FixedReward,
		MinEntriesPerBlock: cfg.Chain.MinEntriesPerBlock,
		StoragePath:        cfg.Chain.StoragePath,
		SeedPeers:          cfg.Chain.SeedPeers,
		EvHandler:          ev,
	})

	if cfg.Chain.AutoStart {
		if err := n.Start(); err != nil {
			return fmt.Errorf("starting node: %w", err)
		}
	}
	defer n.Shutdown()

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing public API support")

	mux := handlers.Mux(handlers.MuxConfig{
		Log:  log,
		Node: n,
		Evts: evts,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      mux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		evts.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
