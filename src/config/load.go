package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/spf13/viper"
)

// BaseDirectory returns the base directory of the node called legalName under
// driverDirectory. The result never escapes driverDirectory, whatever the
// name contains.
func BaseDirectory(driverDirectory string, legalName identity.Name) (string, error) {
	name := DirectoryName(legalName)
	if name == "" {
		return "", fmt.Errorf("legal name %q has an empty common name", legalName)
	}
	return securejoin.SecureJoin(driverDirectory, name)
}

// Load reads the configuration of the node in baseDirectory. Values are
// resolved, from lowest to highest priority, from Defaults, from node.conf and
// from overrides. A missing node.conf is an error unless allowMissing is set.
func Load(baseDirectory string, allowMissing bool, overrides map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetDefault(KeyBaseDirectory, baseDirectory)

	v.SetConfigFile(filepath.Join(baseDirectory, ConfigFile))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) || !allowMissing {
			return nil, fmt.Errorf("reading %s: %w", ConfigFile, err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	return v, nil
}

// Parse decodes the settings held by v.
func Parse(v *viper.Viper) (*NodeConfig, error) {
	conf := new(NodeConfig)
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}
	if conf.MyLegalName == "" {
		return nil, fmt.Errorf("%s is not set", KeyMyLegalName)
	}
	if conf.BaseDirectory != "" {
		abs, err := filepath.Abs(conf.BaseDirectory)
		if err != nil {
			return nil, err
		}
		conf.BaseDirectory = abs
	}
	return conf, nil
}

// Render encodes settings as TOML.
func Render(settings map[string]interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(settings); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders settings into baseDirectory/node.conf, creating the directory
// if needed.
func Write(baseDirectory string, settings map[string]interface{}) error {
	data, err := Render(settings)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(baseDirectory, 0755); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(baseDirectory, ConfigFile), data, 0644)
}
