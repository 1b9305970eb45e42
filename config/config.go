// Package config loads the kernel process's runtime configuration from a
// TOML file on disk, the way the teacher's config package loads its node
// configuration, auto-creating a default file (with a generated
// adjudicator key) on first run rather than failing when none exists.
package config

import (
	"encoding/hex"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wardenledger/kernel/crypto"
)

// Config covers spec.md §6's Environment block: the data directory, WAL
// fsync policy, segment rollover size, checkpoint cadence, the
// policy-provider version string stamped into every decision card, and
// the Gate's per-stage timeout defaults.
type Config struct {
	DataDir  string `toml:"DataDir"`
	LogFile  string `toml:"LogFile"`
	Env      string `toml:"Env"`

	// LedgerDriver selects the Ledger's gorm backend: "sqlite" (default,
	// single-file, zero ops burden) or "postgres" (LedgerDSN-addressed, for
	// deployments that already run Postgres for everything else and want
	// the ledger alongside it rather than a second storage engine).
	LedgerDriver string `toml:"LedgerDriver"`
	LedgerDSN    string `toml:"LedgerDSN"`

	// AdjudicatorKey is a hex-encoded ECDSA key generated on first run and
	// persisted here; it is never derived from declaration identity
	// material. No kernel component reads it: PolicyDecisionCard.Adjudicator
	// is set by the policy provider, and cards are signed with
	// CardSigningKey.
	AdjudicatorKey string `toml:"AdjudicatorKey"`
	CardSigningKey string `toml:"CardSigningKey"`

	FsyncPolicy     string `toml:"FsyncPolicy"`     // always | batch | never
	FsyncBatchMS    int    `toml:"FsyncBatchMS"`
	MaxSegmentBytes int64  `toml:"MaxSegmentBytes"`
	CheckpointEvery string `toml:"CheckpointEvery"` // cron expression, e.g. "@every 5m"

	PolicyProviderVersion string `toml:"PolicyProviderVersion"`
	PolicyProfile         string `toml:"PolicyProfile"`

	GatePolicyTimeout time.Duration `toml:"GatePolicyTimeout"`
	GateCapTimeout    time.Duration `toml:"GateCapTimeout"`
	CoSignWaitDefault time.Duration `toml:"CoSignWaitDefault"`

	MinConfidence     float64 `toml:"MinConfidence"`
	MaxAllowedRisk    string  `toml:"MaxAllowedRisk"`
	HumanReviewAtRisk string  `toml:"HumanReviewAtRisk"`

	// SubmissionRatePerSecond/SubmissionBurst bound how fast a single
	// worldline may submit declarations: they size the SubmissionLimiter
	// that the Gate's Declaration Validation stage consults. The limiter's
	// Counters can feed the Safety layer's RapidEscalation coercion check
	// (spec.md §4.I); the kernel itself does not run that check.
	SubmissionRatePerSecond float64 `toml:"SubmissionRatePerSecond"`
	SubmissionBurst         int     `toml:"SubmissionBurst"`
}

// Load reads the configuration at path, creating a default file (with a
// freshly generated adjudicator key) if none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	dirty := false
	if cfg.AdjudicatorKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.AdjudicatorKey = hex.EncodeToString(key.Bytes())
		dirty = true
	}
	if cfg.CardSigningKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.CardSigningKey = hex.EncodeToString(key.Bytes())
		dirty = true
	}
	applyDefaults(cfg)
	if dirty {
		if err := writeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// createDefault writes a fresh default configuration file at path.
func createDefault(path string) (*Config, error) {
	adjKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	signKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:        "./kernel-data",
		AdjudicatorKey: hex.EncodeToString(adjKey.Bytes()),
		CardSigningKey: hex.EncodeToString(signKey.Bytes()),
	}
	applyDefaults(cfg)

	if err := writeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in every field Load/createDefault leaves at its zero
// value with the kernel's documented default, per spec.md §9(b)'s
// co-signature-wait decision and the Open Questions ledger in DESIGN.md.
func applyDefaults(cfg *Config) {
	if cfg.FsyncPolicy == "" {
		cfg.FsyncPolicy = "always"
	}
	if cfg.MaxSegmentBytes == 0 {
		cfg.MaxSegmentBytes = 64 << 20
	}
	if cfg.CheckpointEvery == "" {
		cfg.CheckpointEvery = "@every 5m"
	}
	if cfg.PolicyProviderVersion == "" {
		cfg.PolicyProviderVersion = "v1"
	}
	if cfg.PolicyProfile == "" {
		cfg.PolicyProfile = "oversight-first"
	}
	if cfg.GatePolicyTimeout == 0 {
		cfg.GatePolicyTimeout = 5 * time.Second
	}
	if cfg.GateCapTimeout == 0 {
		cfg.GateCapTimeout = 1 * time.Second
	}
	if cfg.CoSignWaitDefault == 0 {
		cfg.CoSignWaitDefault = 24 * time.Hour
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.7
	}
	if cfg.MaxAllowedRisk == "" {
		cfg.MaxAllowedRisk = "Critical"
	}
	if cfg.HumanReviewAtRisk == "" {
		cfg.HumanReviewAtRisk = "High"
	}
	if cfg.SubmissionRatePerSecond == 0 {
		cfg.SubmissionRatePerSecond = 5
	}
	if cfg.SubmissionBurst == 0 {
		cfg.SubmissionBurst = 10
	}
	if cfg.LedgerDriver == "" {
		cfg.LedgerDriver = "sqlite"
	}
}

func writeFile(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
