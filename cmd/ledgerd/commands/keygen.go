package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/spf13/cobra"
)

var (
	privKeyFile string
	pubKeyFile  string
)

// NewKeygenCmd produces a KeygenCmd which creates the key pair of a node
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keygen",
		Short:   "Create new key pair",
		PreRunE: loadConfig,
		RunE:    keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", "", "File where the private key will be written, defaults to <base-directory>/"+config.DefaultKeyfile)
	cmd.Flags().StringVar(&pubKeyFile, "pub", "", "File where the public key will be written, defaults to <base-directory>/key.pub")
}

func keygen(cmd *cobra.Command, args []string) error {
	if privKeyFile == "" {
		privKeyFile = filepath.Join(_config.BaseDirectory, config.DefaultKeyfile)
	}
	if pubKeyFile == "" {
		pubKeyFile = filepath.Join(_config.BaseDirectory, "key.pub")
	}

	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("a key already lives under: %s", filepath.Dir(privKeyFile))
	}

	key, err := identity.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	if err := identity.NewKeyfile(privKeyFile).WriteKey(key); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	if err := os.MkdirAll(filepath.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	pub := identity.FromPublicKey(&key.PublicKey).String()

	if err := os.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	fmt.Printf("Your public key has been saved to: %s\n", pubKeyFile)

	return nil
}
