package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lattice/internal/infra/config"
	"lattice/internal/infra/env"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Encrypt a secret for use as an enc: config value",
		Long: `Encrypt a secret such as an agent api_key with the passphrase in
LATTICE_CONFIG_KEY. Paste the printed enc: value into the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase, ok := env.Read("LATTICE_CONFIG_KEY")
			if !ok {
				return errors.New("LATTICE_CONFIG_KEY is not set")
			}
			enc, err := config.EncryptValue(args[0], passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "enc:"+enc)
			return nil
		},
	}
}
