// Package config loads the relayer's environment-based configuration (spec
// §6), using viper for env binding/defaults, fsnotify (via viper's
// WatchConfig) to watch an optional config file, and an optional local .env
// file via godotenv — the ambient configuration stack named in SPEC_FULL.md,
// not itself part of the spec's core. Values are read once in Load; later
// changes to the watched file do not reach an already-returned Config.
package config

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pro123908/pepu-bridge-server/internal/relayerr"
)

const (
	defaultL1RPCURL = "https://eth-mainnet.g.alchemy.com/v2/demo"
	defaultL2RPCURL = "https://polygon-mainnet.g.alchemy.com/v2/demo"
)

// Config is the fully-resolved, validated configuration a process needs to
// start every Supervisor/Relayer.
type Config struct {
	L1RPCURL   string
	L2RPCURL   string
	LogLevel   string
	PrivateKey *ecdsa.PrivateKey
}

// Load reads .env (if present), binds environment variables via viper, and
// validates the result. OWNER_PRIVATE_KEY is required — its absence is a
// fatal ConfigError per spec §7/AMBIENT STACK ("missing key aborts the
// whole process, since without a signer no relay can ever succeed").
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Missing .env is expected outside local development. Every load
		// error, a malformed file included, is ignored; viper's env binding
		// still works without it.
		_ = err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("l1_rpc_url", defaultL1RPCURL)
	v.SetDefault("l2_rpc_url", defaultL2RPCURL)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, relayerr.NewConfigError("bind command-line flags", err)
		}
	}

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, relayerr.NewConfigError("read config file "+cfgFile, err)
		}
		v.WatchConfig()
	}

	keyHex := strings.TrimSpace(v.GetString("owner_private_key"))
	if keyHex == "" {
		return nil, relayerr.NewConfigError("OWNER_PRIVATE_KEY is required", nil)
	}
	keyHex = strings.TrimPrefix(keyHex, "0x")

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, relayerr.NewConfigError("OWNER_PRIVATE_KEY is not a valid hex-encoded private key", err)
	}

	return &Config{
		L1RPCURL:   v.GetString("l1_rpc_url"),
		L2RPCURL:   v.GetString("l2_rpc_url"),
		LogLevel:   v.GetString("log-level"),
		PrivateKey: privateKey,
	}, nil
}

// Flags declares the pflag surface main() parses before calling Load:
// --config and --log-level, layered under viper per AMBIENT STACK.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("relayer", pflag.ContinueOnError)
	fs.String("config", "", "optional path to a relayer.yaml override file")
	fs.String("log-level", "info", "zap log level (debug, info, warn, error)")
	return fs
}
