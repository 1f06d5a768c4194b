package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"media_relay_bot/internal/pkg/vault"
)

func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Encrypt or decrypt stored credentials with the configured master key",
	}
	cmd.AddCommand(newVaultOpCmd("encrypt", "Encrypt a value (argument or stdin)", (*vault.Vault).Encrypt))
	cmd.AddCommand(newVaultOpCmd("decrypt", "Decrypt a stored value (argument or stdin)", (*vault.Vault).Decrypt))
	return cmd
}

func newVaultOpCmd(use, short string, op func(*vault.Vault, string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [value]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vault.New(viper.GetString("vault.master_key"), viper.GetString("vault.salt"))
			if err != nil {
				return err
			}

			var input string
			if len(args) == 1 {
				input = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				sc.Buffer(make([]byte, 64*1024), 1024*1024)
				if sc.Scan() {
					input = sc.Text()
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			input = strings.TrimSpace(input)
			if input == "" {
				return fmt.Errorf("nothing to %s", use)
			}

			out, err := op(v, input)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}
