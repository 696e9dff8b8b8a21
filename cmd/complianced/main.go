// Package main implements the complianced CLI: building the rule
// index and running retrieval-grounded compliance checks on extracted
// product label facts.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/complianced/internal/config"
	"github.com/fyrsmithlabs/complianced/internal/logging"
	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "complianced",
	Short: "Retrieval-grounded label compliance validator",
	Long: `complianced validates packaged-commodity label facts against the
Legal Metrology (Packaged Commodities) Rules corpus. It indexes the
rule text for semantic search, grounds every finding in retrieved
passages, and emits structured verdicts with rule citations.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/complianced/config.yaml)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(checkCmd)
}

// setup loads configuration and constructs the logger shared by all
// commands.
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, logger, nil
}

// readFacts loads a product facts JSON file, keeping only recognized
// fields. Absent keys stay absent: the core distinguishes a field
// missing from the label from one extracted empty.
func readFacts(path string) (verdict.Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading facts file: %w", err)
	}

	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing facts file: %w", err)
	}

	facts := make(verdict.Facts)
	for _, field := range verdict.KnownFields() {
		if value, ok := raw[string(field)]; ok && value != nil {
			facts[field] = *value
		}
	}
	return facts, nil
}
