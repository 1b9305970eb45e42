// Command kerneld boots the accountability kernel in-process: it loads
// configuration, opens the WAL and ledger store, recovers volatile state,
// and keeps the Kernel running (with its periodic checkpoint scheduler)
// until interrupted. It exposes no HTTP/CLI/RPC surface of its own — that
// glue is explicitly out of scope (spec.md §1) and lives in a façade that
// imports core/kernel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wardenledger/kernel/config"
	"github.com/wardenledger/kernel/core/kernel"
	"github.com/wardenledger/kernel/core/policy"
	"github.com/wardenledger/kernel/observability/logging"
)

func main() {
	configFile := flag.String("config", "./kerneld.toml", "Path to the configuration file")
	ledgerPath := flag.String("ledger", "", "Path to the sqlite ledger database (overrides DataDir/ledger.db)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kerneld: load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("KERNELD_ENV"))
	var log *slog.Logger
	if logFile := strings.TrimSpace(cfg.LogFile); logFile != "" {
		log = logging.SetupFile("kerneld", env, logFile)
	} else {
		log = logging.Setup("kerneld", env)
	}

	db, err := openLedgerDB(cfg, *ledgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kerneld: open ledger database: %v\n", err)
		os.Exit(1)
	}

	profile, ok := policy.NamedProfile(cfg.PolicyProfile)
	if !ok {
		fmt.Fprintf(os.Stderr, "kerneld: unknown policy profile %q\n", cfg.PolicyProfile)
		os.Exit(1)
	}
	provider := policy.NewProfileProvider(profile, cfg.PolicyProviderVersion)

	k, err := kernel.Open(cfg, db, provider)
	if err != nil {
		// Per spec.md §4.J, a broken chain at boot halts loudly rather
		// than silently continuing on a recovered-but-untrustworthy log.
		fmt.Fprintf(os.Stderr, "kerneld: boot failed: %v\n", err)
		os.Exit(1)
	}
	defer k.Close()

	log.Info("kernel recovered",
		"recovered_events", k.RecoveredCount,
		"next_seq", k.RecoveredNextSeq,
		"policy_profile", profile.Name,
	)

	report := k.VerifyIntegrity()
	if !report.IsClean() {
		fmt.Fprintf(os.Stderr, "kerneld: chain integrity broken at boot: %d broken links, %d errors\n", len(report.BrokenLinks), len(report.IntegrityErrors))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("kernel running")
	<-ctx.Done()
	log.Info("kernel shutting down")

	if err := k.Checkpoint(); err != nil {
		log.Error("final checkpoint failed", "err", err)
	}
}

// openLedgerDB opens the Ledger's gorm backend per cfg.LedgerDriver.
// ledgerPath, when non-empty, overrides a sqlite backend's file path (the
// -ledger flag); it has no effect on a postgres backend, which is always
// addressed by cfg.LedgerDSN.
func openLedgerDB(cfg *config.Config, ledgerPath string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LedgerDriver)) {
	case "", "sqlite":
		dbPath := strings.TrimSpace(ledgerPath)
		if dbPath == "" {
			dbPath = cfg.DataDir + "/ledger.db"
		}
		return gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	case "postgres":
		if strings.TrimSpace(cfg.LedgerDSN) == "" {
			return nil, fmt.Errorf("LedgerDriver is postgres but LedgerDSN is empty")
		}
		return gorm.Open(postgres.Open(cfg.LedgerDSN), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown LedgerDriver %q", cfg.LedgerDriver)
	}
}
