package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"

	"github.com/zkusd-io/spellbind/chaindata"
	"github.com/zkusd-io/spellbind/logconfig"
	"github.com/zkusd-io/spellbind/pendingstore"
	"github.com/zkusd-io/spellbind/reporter"
	"github.com/zkusd-io/spellbind/spell"
	"github.com/zkusd-io/spellbind/spellcache"
	"github.com/zkusd-io/spellbind/spellservice"
	"github.com/zkusd-io/spellbind/utxo"
)

const (
	ENV_CONFIG_FILE_PATH = "SPELLBIND_CONFIG"
)

func main() {
	logconfig.ConfigInfoLogger()

	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("spellbind configuration file = %s\n", _config_file)

	if !fileExists(_config_file) {
		fmt.Printf("spellbind configuration file not found: %s\n", _config_file)
		return
	}

	if !initializeViper(_config_file) {
		return
	}

	cfg := prepareConfig()
	if cfg == nil {
		fmt.Printf("Error loading spellbind configuration\n")
		return
	}

	svc, rep, cleanup, err := wire(cfg)
	if err != nil {
		fmt.Printf("Error wiring spellbind: %v\n", err)
		return
	}
	defer cleanup()
	_ = svc

	fmt.Println("Starting spellbind reporter... press Ctrl+C to stop")
	rep.Run()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// Config gathers the runtime configuration of the spell subsystem.
type Config struct {
	BtcParams *chaincfg.Params

	DBFilePath string

	EsploraURL string
	PriceURL   string

	VaultManagerVK string
	ZkusdTokenVK   string

	ReporterIP   string
	ReporterPort string
}

// prepareConfig reads configuration variables and returns a Config.
func prepareConfig() *Config {
	// Parse the BTC chain config (e.g., "regtest", "testnet", or "mainnet").
	var btcParams *chaincfg.Params
	switch viper.GetString("BTC_CHAIN_CONFIG") {
	case "testnet":
		btcParams = &chaincfg.TestNet3Params
	case "mainnet":
		btcParams = &chaincfg.MainNetParams
	case "regtest":
		btcParams = &chaincfg.RegressionNetParams
	default:
		// default to testnet, where the prover deployment lives
		btcParams = &chaincfg.TestNet3Params
	}

	cfg := &Config{
		BtcParams:      btcParams,
		DBFilePath:     viper.GetString("DB_FILE_PATH"),
		EsploraURL:     viper.GetString("ESPLORA_URL"),
		PriceURL:       viper.GetString("PRICE_URL"),
		VaultManagerVK: viper.GetString("VAULT_MANAGER_VK"),
		ZkusdTokenVK:   viper.GetString("ZKUSD_TOKEN_VK"),
		ReporterIP:     viper.GetString("REPORTER_IP"),
		ReporterPort:   viper.GetString("REPORTER_PORT"),
	}

	if cfg.DBFilePath == "" || cfg.VaultManagerVK == "" || cfg.ZkusdTokenVK == "" {
		return nil
	}
	if cfg.EsploraURL == "" {
		cfg.EsploraURL = chaindata.DefaultBaseURL
	}
	if cfg.PriceURL == "" {
		cfg.PriceURL = chaindata.DefaultPriceURL
	}
	if cfg.ReporterIP == "" {
		cfg.ReporterIP = "127.0.0.1"
	}
	if cfg.ReporterPort == "" {
		cfg.ReporterPort = "8777"
	}
	return cfg
}

func wire(cfg *Config) (*spellservice.SpellService, *reporter.HttpReporter, func(), error) {
	db, err := sql.Open("sqlite3", cfg.DBFilePath)
	if err != nil {
		return nil, nil, nil, err
	}

	cacheStorage, err := spellcache.NewSQLiteEntryStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	pendingStorage, err := pendingstore.NewSQLitePendingStorage(db)
	if err != nil {
		cacheStorage.Close()
		db.Close()
		return nil, nil, nil, err
	}

	cache := spellcache.NewSpellCacheManager(cacheStorage, spellcache.DefaultTTL)
	pending := pendingstore.NewStore(pendingStorage, pendingstore.DefaultTTL)

	chain := chaindata.NewClient(cfg.EsploraURL)
	price := chaindata.NewPriceClient(cfg.PriceURL)

	builder := func(params spell.Params, collateralUtxo, feeUtxo utxo.Info, frozen spell.FrozenValues) (spell.Body, error) {
		return spell.OpenVaultSpell(cfg.VaultManagerVK, cfg.ZkusdTokenVK, params, collateralUtxo.ID(), frozen), nil
	}

	svc := spellservice.NewSpellService(pending, cache, chain, price, builder)
	rep := reporter.NewHttpReporter(cfg.ReporterIP, cfg.ReporterPort, cache, pending)

	cleanup := func() {
		chain.Close()
		price.Close()
		cacheStorage.Close()
		pendingStorage.Close()
		db.Close()
	}
	return svc, rep, cleanup, nil
}
