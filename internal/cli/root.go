// Package cli implements jobctl, the command line client of the recruitq API.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "jobctl",
	Short: "Submit and inspect recruitq background jobs",
	Long: `jobctl talks to the recruitq API to queue candidate imports and market
research refreshes, follow their progress and export import reports.

Settings are read from flags, then RECRUITQ_* environment variables, then
an optional config file.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default $HOME/.jobctl.yaml)")
	pf.String("api-url", "", "Base URL of the recruitq API (env RECRUITQ_API_URL)")
	pf.String("user-id", "", "User the jobs are submitted for (env RECRUITQ_USER_ID)")
	pf.Duration("timeout", 0, "HTTP request timeout")
	pf.Bool("json", false, "Output as JSON")

	_ = viper.BindPFlag("api_url", pf.Lookup("api-url"))
	_ = viper.BindPFlag("user_id", pf.Lookup("user-id"))
	_ = viper.BindPFlag("timeout", pf.Lookup("timeout"))
	_ = viper.BindPFlag("json", pf.Lookup("json"))
}

// SetVersion sets the version reported by --version
func SetVersion(version string) {
	rootCmd.Version = version
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setDefaults() {
	viper.SetDefault("api_url", "http://localhost:8080")
	viper.SetDefault("timeout", "30s")
	viper.SetDefault("poll_interval", "1s")
	viper.SetDefault("json", false)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	setDefaults()
	viper.SetEnvPrefix("RECRUITQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".jobctl")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// the default config file is optional, an explicit one is not
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func newClient() *Client {
	return NewClient(viper.GetString("api_url"), viper.GetDuration("timeout"))
}

func pollInterval() time.Duration {
	if d := viper.GetDuration("poll_interval"); d > 0 {
		return d
	}
	return time.Second
}

func jsonOutput() bool {
	return viper.GetBool("json")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
