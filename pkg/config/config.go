package config

import (
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
)

type Config struct {
	API struct {
		Port  int     `env:"PORT" envDefault:"8081"`
		RPS   float64 `env:"API_RPS" envDefault:"10"`
		Burst int     `env:"API_BURST" envDefault:"20"`
	}
	App struct {
		LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`
		MetricsPort int    `env:"METRICS_PORT" envDefault:"9010"`
		SentryDSN   string `env:"SENTRY_DSN"`
		// Safes are tracked on top of the ones in the address book.
		Safes           accountsList `env:"SAFES"`
		AddressBookPath string       `env:"ADDRESS_BOOK_PATH"`
	}
	Chain struct {
		RPCURL             string        `env:"ETH_RPC_URL" envDefault:"http://127.0.0.1:8545"`
		ChainID            int64         `env:"CHAIN_ID" envDefault:"1"`
		EventsPollInterval time.Duration `env:"EVENTS_POLL_INTERVAL" envDefault:"5s"`
		StateCacheTTL      time.Duration `env:"STATE_CACHE_TTL" envDefault:"15s"`
	}
	Storage struct {
		ProposalsDBPath string `env:"PROPOSALS_DB_PATH" envDefault:"proposals.db"`
	}
	Keystore struct {
		Dir        string `env:"KEYSTORE_DIR"`
		Passphrase string `env:"KEYSTORE_PASSPHRASE"`
	}
	Relayer struct {
		// Key is a hex encoded private key of the account paying for execution.
		Key string `env:"RELAYER_KEY"`
		RPS int    `env:"RELAYER_RPS" envDefault:"5"`
	}
}

type accountsList []common.Address

func parseAccounts(v string) (interface{}, error) {
	var accs accountsList
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !common.IsHexAddress(s) {
			return nil, errors.Errorf("invalid address %q", s)
		}
		accs = append(accs, common.HexToAddress(s))
	}
	return accs, nil
}

func Load() Config {
	c, err := load(env.Options{})
	if err != nil {
		log.Panicf("[‼️  Config parsing failed] %+v\n", err)
	}
	return c
}

func load(opts env.Options) (Config, error) {
	var c Config
	err := env.ParseWithFuncs(&c, map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(accountsList{}): parseAccounts,
	}, opts)
	return c, err
}
