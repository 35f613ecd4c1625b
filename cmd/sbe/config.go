package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spacebio/engine/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

// ConfigResponse is the response for the config command.
type ConfigResponse struct {
	Dir         string         `json:"dir"`
	RecordsPath string         `json:"records_path"`
	VectorsPath string         `json:"vectors_path"`
	DBPath      string         `json:"db_path"`
	PDFPath     string         `json:"pdf_path,omitempty"`
	Config      *config.Config `json:"config"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults and environment overrides, with
data paths resolved. API keys are masked.

Configuration is read from --config, $SBE_CONFIG, the nearest sbe.yml above
the working directory, or the global config file, in that order.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	shown := *cfg
	shown.Embedding.APIKey = maskSecret(shown.Embedding.APIKey)
	shown.LLM.APIKey = maskSecret(shown.LLM.APIKey)

	if humanOutput {
		out, err := yaml.Marshal(&shown)
		if err != nil {
			exitWithError(ExitError, "encoding config: %v", err)
		}
		fmt.Printf("# resolved against %s\n", cfg.Dir)
		fmt.Print(string(out))
		return nil
	}

	outputJSON(ConfigResponse{
		Dir:         cfg.Dir,
		RecordsPath: cfg.RecordsPath(),
		VectorsPath: cfg.VectorsPath(),
		DBPath:      cfg.DBPath(),
		PDFPath:     cfg.PDFPath(),
		Config:      &shown,
	})
	return nil
}

// maskSecret hides all but the last four characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
