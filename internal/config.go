package internal

import (
	"chat-pubsub/errors"
	"fmt"
	"time"
)

const (
	BackendRedis  = "redis"
	BackendLocal  = "local"
	BackendBadger = "badger"
)

type Config struct {
	RedisHost       string        `env:"REDIS_HOST,default=redis"`
	RedisPort       int           `env:"REDIS_PORT,default=6379"`
	RedisDB         int           `env:"REDIS_DB,default=0"`
	BrokerBackend   string        `env:"BROKER_BACKEND,default=redis"`
	StoreBackend    string        `env:"STORE_BACKEND,default=redis"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH"`
	ReceiveWait     time.Duration `env:"RECEIVE_WAIT,default=250ms"`
	InboxSize       int           `env:"INBOX_SIZE,default=64"`
	SeedWeather     bool          `env:"SEED_WEATHER,default=true"`
	CensoredWords   string        `env:"CENSORED_WORDS"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,default=*"`
	Colours         bool          `env:"COLOURS,default=true"`
	LogLevel        string        `env:"LOG_LEVEL,default=WARN"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081"`
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Validate checks the backend names and the replacement rune.
func (c Config) Validate() error {
	if c.BrokerBackend != BackendRedis && c.BrokerBackend != BackendLocal {
		return fmt.Errorf("%w: BROKER_BACKEND=%q", errors.ErrUnknownBackend, c.BrokerBackend)
	}
	if c.StoreBackend != BackendRedis && c.StoreBackend != BackendBadger {
		return fmt.Errorf("%w: STORE_BACKEND=%q", errors.ErrUnknownBackend, c.StoreBackend)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

// UsesRedis reports whether a Redis client is needed at all.
func (c Config) UsesRedis() bool {
	return c.BrokerBackend == BackendRedis || c.StoreBackend == BackendRedis
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("%w: CHARACTER_REPLACEMENT=%q", errors.ErrInvalidReplaceRune, str)
	}
	return r[0], nil
}
