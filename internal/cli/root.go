// Package cli implements the lynks command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lynks-network/lynks/internal/daemon"
	"github.com/lynks-network/lynks/internal/domain"
)

var (
	configPath   string
	outputFormat string
	actingAs     string
	actingRole   string
)

var rootCmd = &cobra.Command{
	Use:   "lynks",
	Short: "Lynks task-and-reward marketplace server",
	Long: `Lynks runs the submission settlement engine: actors post links, other
actors submit proof of engagement, and credits move between them when a
submission is approved, auto-approved after the review window, or won on
dispute.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config.toml")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&actingAs, "as", "", "Actor id to act as")
	rootCmd.PersistentFlags().StringVar(&actingRole, "role", "STANDARD", "Role of the acting actor")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultConfigPath() string {
	if env := os.Getenv("LYNKS_CONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".lynks", "config.toml")
}

// openDaemon loads configuration and opens local storage.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}

// caller builds the acting identity from --as and --role.
func caller() (domain.ActorContext, error) {
	role, err := domain.ParseRole(actingRole)
	if err != nil {
		return domain.ActorContext{}, err
	}
	c := domain.ActorContext{ID: actingAs, Role: role}
	if err := c.Validate(); err != nil {
		return domain.ActorContext{}, fmt.Errorf("use --as to choose an actor: %w", err)
	}
	return c, nil
}

// printOutput writes v in the selected format. text falls back to the
// supplied renderer.
func printOutput(w io.Writer, v any, text func(io.Writer)) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "text", "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}
