package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

// KeySource says where the API key came from.
type KeySource string

const (
	KeySourceNone    KeySource = ""
	KeySourceConfig  KeySource = "config"
	KeySourceEnv     KeySource = "environment"
	KeySourceKeyring KeySource = "keyring"
)

const keyringUser = "openrouter"

// ErrNoAPIKey is returned when no key is stored in the keyring.
var ErrNoAPIKey = errors.New("no API key stored")

// KeyStore persists the OpenRouter API key.
type KeyStore interface {
	Get() (string, error)
	Set(key string) error
	Delete() error
}

// Keyring stores the API key in the OS credential store.
type Keyring struct {
	service string
}

// NewKeyring returns the keyring store for this application.
func NewKeyring() *Keyring {
	return &Keyring{service: AppName}
}

func (k *Keyring) Get() (string, error) {
	secret, err := keyring.Get(k.service, keyringUser)
	if err != nil {
		return "", toError(err)
	}
	return secret, nil
}

func (k *Keyring) Set(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key is empty")
	}
	if err := keyring.Set(k.service, keyringUser, key); err != nil {
		return toError(err)
	}
	return nil
}

func (k *Keyring) Delete() error {
	if err := keyring.Delete(k.service, keyringUser); err != nil {
		return toError(err)
	}
	return nil
}

func toError(err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNoAPIKey
	}
	if errors.Is(err, keyring.ErrSetDataTooBig) {
		return fmt.Errorf("API key is too large for the keyring: %w", err)
	}
	return fmt.Errorf("keyring unavailable: %w", err)
}

var _ KeyStore = (*Keyring)(nil)

// resolveAPIKey prefers an explicit setting (flag, config file or prefixed
// environment variable), then OPENROUTER_API_KEY, then the keyring.
func resolveAPIKey(v *viper.Viper, keys KeyStore) (string, KeySource) {
	if key := strings.TrimSpace(v.GetString(KeyAPIKey)); key != "" {
		if _, ok := os.LookupEnv(EnvPrefix + "_API_KEY"); ok {
			return key, KeySourceEnv
		}
		return key, KeySourceConfig
	}
	if key := strings.TrimSpace(os.Getenv(OpenRouterKeyEnv)); key != "" {
		return key, KeySourceEnv
	}
	if keys == nil {
		return "", KeySourceNone
	}

	key, err := keys.Get()
	switch {
	case err == nil && key != "":
		return key, KeySourceKeyring
	case err != nil && !errors.Is(err, ErrNoAPIKey):
		log.Debug().Err(err).Msg("could not read API key from keyring")
	}
	return "", KeySourceNone
}
