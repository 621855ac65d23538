package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cockpit/fusion/internal/auth"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [device-id]",
	Short: "Mint a device token for a panel or signal source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		tok, err := auth.GenerateDeviceToken(cfg.Auth.TokenSecret, args[0], time.Now().Add(ttl).Unix())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.token_ttl)")
}
