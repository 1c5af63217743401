package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/config"
	"github.com/ragtools/kb/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check knowledge base health",
	Long: `Probe the embedding backend and the vector store and report
whether the knowledge base is ready to use.

A degraded component is reported, not treated as a command failure.

Examples:
  kb status`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	log.Debug("Running health check")
	report := manager.HealthCheck(ctx)

	fmt.Println(ui.Header.Render("Status"))
	fmt.Println()

	fmt.Printf("%s %s %s (%s)\n",
		ui.StatusIcon(report.Components.Embedder),
		ui.Bold.Render("Embedder"),
		cfg.Embedding.Model,
		cfg.Embedding.Provider,
	)
	fmt.Printf("%s %s %s\n",
		ui.StatusIcon(report.Components.Store),
		ui.Bold.Render("Store"),
		cfg.Storage.Path,
	)

	if len(report.Problems) > 0 {
		fmt.Println()
		for _, problem := range report.Problems {
			fmt.Printf("  %s %s\n", ui.Warning.Render("!"), problem)
		}
	}

	fmt.Println()
	if report.Healthy {
		fmt.Println(ui.Success.Render("Healthy"))
	} else {
		fmt.Println(ui.Error.Render("Unhealthy"))
	}

	return nil
}
