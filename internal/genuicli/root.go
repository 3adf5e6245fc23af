// Package genuicli implements the genui command line tool: local rendering
// of captured streams, transcripts, and session commands against a bridge
// server.
package genuicli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	cfgFile         string
	contextName     string
	overrideURL     string
	overrideToken   string
	outputFormat    string
	transcriptsPath string

	appConfig *Config
	failed    bool
)

var errCommandFailed = errors.New("command failed")

// Execute runs the CLI.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	if failed {
		return errCommandFailed
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "genui",
	Short: "Render and inspect generative UI streams",
	Long: `genui consumes generative UI event streams. 'genui render' works on local
captures; the sessions commands talk to a bridge server configured with
'genui config set-context'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Config commands load/save the file manually.
		if strings.HasPrefix(cmd.CommandPath(), "genui config") {
			return nil
		}
		if appConfig == nil {
			var err error
			appConfig, err = LoadConfig(cfgFile)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "Path to the genui config file")
	rootCmd.PersistentFlags().StringVar(&contextName, "context", "", "Context name to use (overrides current)")
	rootCmd.PersistentFlags().StringVar(&overrideURL, "server", "", "Override bridge server URL")
	rootCmd.PersistentFlags().StringVar(&overrideToken, "token", "", "Override API token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json")
	rootCmd.PersistentFlags().StringVar(&transcriptsPath, "transcripts", defaultTranscriptsPath(), "Path to the local transcript archive")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(transcriptsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
}

// resolvedContext merges config state with flag overrides.
func resolvedContext() (*Context, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	ctxName := contextName
	if ctxName == "" {
		ctxName = appConfig.CurrentContext
	}
	ctx, ok := appConfig.Contexts[ctxName]
	if !ok && overrideURL == "" {
		return nil, fmt.Errorf("context %q not found; use 'genui config set-context'", ctxName)
	}
	if overrideURL != "" {
		ctx.Server = overrideURL
	}
	if overrideToken != "" {
		ctx.Token = overrideToken
	}
	if ctx.Server == "" {
		return nil, fmt.Errorf("context %q is missing a server URL", ctxName)
	}
	return &ctx, nil
}

func mustClient() (*Client, *Context, error) {
	ctx, err := resolvedContext()
	if err != nil {
		return nil, nil, err
	}
	client := &Client{
		BaseURL: ctx.Server,
		Token:   ctx.Token,
		Timeout: 15 * time.Second,
	}
	return client, ctx, nil
}

func exitWithError(cmd *cobra.Command, err error) {
	cmd.SilenceUsage = true
	failed = true
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func defaultTranscriptsPath() string {
	return filepath.Join(genuiHome(), "transcripts.db")
}
