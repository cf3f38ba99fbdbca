// Command opsdash-probe checks a backend connection by counting the rows of every table
// the dashboard reads.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/h0rv/opsdash/internal/backend"
	"github.com/h0rv/opsdash/internal/config"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

var (
	configDirFlag string
	timeoutFlag   time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opsdash-probe",
		Short: "Count the rows opsdash would read from the configured backend",
		Args:  cobra.NoArgs,
		Run:   probe,
	}
	rootCmd.Flags().StringVar(&configDirFlag, "config-dir", config.DefaultConfigDir(), "Configuration directory.")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "Overall deadline.")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func probe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configDirFlag)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	fmt.Printf("Backend: %s  Feed: %s\n\n", cfg.Backend, cfg.Feed.Kind)

	fmt.Println("Boards:")
	for _, def := range domain.Boards() {
		rows, err := b.FetchAll(ctx, def.Table, domain.Order{Column: "created_at"})
		if err != nil {
			fmt.Printf("  %-8s %-16s error: %v\n", def.Name, def.Table, err)
			continue
		}
		fmt.Printf("  %-8s %-16s %d rows\n", def.Name, def.Table, len(rows))
	}

	_, total, err := b.FetchPage(ctx, domain.NotesTable, gateway.Filter{}, domain.Order{Column: "updated_at", Desc: true}, 0, 1)
	if err != nil {
		fmt.Printf("\nNotes: error: %v\n", err)
		return
	}
	fmt.Printf("\nNotes: %d in %s\n", total, domain.NotesTable)
}
