package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/radaudit/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage radaudit configuration",
	Long: `Manage radaudit configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (RADAUDIT_*, e.g. RADAUDIT_GENERATION_PROVIDER)
3. Config file (./config.yaml or ~/.radaudit/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file and environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		shown := *cfg
		if shown.Generation.APIKey != "" {
			shown.Generation.APIKey = "********"
		}

		yamlData, err := yaml.Marshal(shown)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}

		fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
		fmt.Fprintln(out, "  Current Configuration")
		fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
		fmt.Fprintln(out)
		fmt.Fprintln(out, string(yamlData))
		fmt.Fprintln(out, "Configuration hierarchy (highest to lowest priority):")
		fmt.Fprintln(out, "  1. CLI flags")
		fmt.Fprintln(out, "  2. Environment variables (RADAUDIT_*, OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY, HF_TOKEN)")
		fmt.Fprintln(out, "  3. Config file")
		fmt.Fprintln(out, "  4. Defaults")
		fmt.Fprintln(out)

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.radaudit/config.yaml (or --config) with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			configPath = p
		}

		if _, err := os.Stat(configPath); err == nil {
			return eris.Errorf("config file already exists: %s\nUse 'radaudit config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return eris.Wrap(err, "create config directory")
		}

		f, err := os.Create(configPath)
		if err != nil {
			return eris.Wrap(err, "create config file")
		}
		if err := writeDefaultConfig(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "close config file")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created default configuration: %s\n", configPath)
		fmt.Fprintf(out, "\nTo view the configuration:\n")
		fmt.Fprintf(out, "  radaudit config show\n")
		fmt.Fprintf(out, "\n")
		return nil
	},
}

// writeDefaultConfig writes the built-in defaults as commented YAML
func writeDefaultConfig(w io.Writer) (err error) {
	printf := func(format string, a ...any) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, a...)
	}

	printf("# radaudit configuration file\n")
	printf("#\n")
	printf("# Configuration hierarchy (highest to lowest priority):\n")
	printf("#   1. CLI flags\n")
	printf("#   2. Environment variables (RADAUDIT_*)\n")
	printf("#   3. This config file\n")
	printf("#   4. Built-in defaults\n")
	printf("#\n")
	printf("# generation.provider: mock, openai, hf, anthropic, gemini, ollama\n")
	printf("# storage.driver:      file, sqlite\n")
	printf("# cache.backend:       none, memory, disk, layered\n\n")

	yamlData, mErr := yaml.Marshal(config.Default())
	if mErr != nil {
		return eris.Wrap(mErr, "marshal config")
	}
	printf("%s", yamlData)

	printf("\n# API keys (recommended to use environment variables instead):\n")
	printf("#   export OPENAI_API_KEY=sk-...\n")
	printf("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
	printf("#   export GEMINI_API_KEY=...\n")
	printf("#   export HF_TOKEN=hf_...\n")

	if err != nil {
		return eris.Wrap(err, "write config")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
