package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/catalog"
	"github.com/mlefevre/steamharvest/internal/config"
	"github.com/mlefevre/steamharvest/internal/ledger"
)

// newStatusCmd creates the 'status' subcommand, which reports how far a
// harvest has progressed without touching the network.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Reports harvest progress",
		Long: `Reads the identifier cache and both ledger files and prints how many
apps are done, how many failed validation, and how many remain.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	universe, err := catalog.LoadUniverse(catalog.Config{
		SourcePath: cfg.Catalog.SourcePath,
		CachePath:  cfg.Catalog.CachePath,
	}, zap.NewNop())
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	led, err := ledger.New(ledger.Config{
		ValidPath:      cfg.Output.ValidPath,
		InvalidPath:    cfg.Output.InvalidPath,
		BatchThreshold: cfg.Output.BatchThreshold,
	}, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	valid, invalid, err := led.Counts()
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	processed, err := led.ScanProcessed()
	if err != nil {
		return fmt.Errorf("scan processed: %w", err)
	}

	remaining := 0
	for id := range universe {
		if _, ok := processed[id]; !ok {
			remaining++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "universe:  %d\n", len(universe))
	fmt.Fprintf(out, "valid:     %d\n", valid)
	fmt.Fprintf(out, "invalid:   %d\n", invalid)
	fmt.Fprintf(out, "remaining: %d\n", remaining)
	return nil
}
