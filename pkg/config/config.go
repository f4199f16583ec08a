package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var (
	envFilePath string
	positional  []string
	parseOnce   sync.Once

	exportMu sync.Mutex
	exported = make(map[string]bool)
)

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New fills T from the environment under prefix. Values from the -env file
// (or ./.env) only fill variables the process environment does not set.
func New[T any](prefix string) (*T, error) {
	path := resolveEnvPath()
	if path != "" {
		if err := exportEnvironment(path); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := exportEnvironmentIfExists(".env"); err != nil {
		return nil, fmt.Errorf("failed to load default env file: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("process %s config: %w", prefixLabel(prefix), err)
	}

	return &conf, nil
}

// Args returns the positional command line arguments left after the -env
// flag.
func Args() []string {
	resolveEnvPath()
	return append([]string(nil), positional...)
}

// resolveEnvPath parses os.Args on a private flag set so foreign flags, such
// as the test runner's, leave the defaults in place.
func resolveEnvPath() string {
	parseOnce.Do(func() {
		fs := flag.NewFlagSet("config", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		fs.StringVar(&envFilePath, "env", "", "path to .env file")
		if err := fs.Parse(os.Args[1:]); err != nil {
			envFilePath = ""
			return
		}
		positional = fs.Args()
	})
	return strings.TrimSpace(envFilePath)
}

func exportEnvironmentIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(path)
}

func exportEnvironment(path string) error {
	exportMu.Lock()
	defer exportMu.Unlock()
	if exported[path] {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := envKey(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}

	exported[path] = true
	return nil
}

// envKey maps a viper key back to its variable name. Nested keys use "."
// which is not valid in variable names.
func envKey(k string) string {
	return strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
}

func prefixLabel(prefix string) string {
	if prefix == "" {
		return "app"
	}
	return strings.ToLower(prefix)
}
