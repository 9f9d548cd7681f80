package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/antigravity/feed-gateway/internal/netinfo"
	"github.com/spf13/cobra"
)

var myipCmd = &cobra.Command{
	Use:   "myip",
	Short: "Print the gateway's outbound public IP",
	Long:  `Resolve the public IP the upstream provider sees, for whitelisting at the provider.`,
	RunE:  runMyIP,
}

func init() {
	rootCmd.AddCommand(myipCmd)
}

func runMyIP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	ip, err := netinfo.NewResolver(cfg.OutboundIP).PublicIP(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve outbound IP: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ip)
	return nil
}
