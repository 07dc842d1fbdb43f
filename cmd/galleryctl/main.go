// Command galleryctl administers a running gallery server over its HTTP API
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/appgallery-cms/pkg/client"
	"github.com/appgallery-cms/pkg/logger"
)

// Version is set at build time via -ldflags
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "galleryctl",
	Short:         "Administer an app gallery server",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `galleryctl reads and edits the collections of a running gallery server.

The server URL comes from --server, the GALLERYCTL_SERVER environment
variable, or the "server" key of ~/.config/galleryctl/config.yaml.

Example usage:
  galleryctl apps list -o yaml
  galleryctl featured add 20001
  galleryctl content publish 10003
  galleryctl sync`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Gallery server URL")
	rootCmd.PersistentFlags().StringP("output", "o", "json", "Output format: json or yaml")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/galleryctl/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	for _, name := range []string{"server", "output", "timeout", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig reads the config file and environment. cmd is the command being
// run; persistent flags of the root are visible through its flag set.
func initConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "galleryctl"))
		}
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("GALLERYCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	switch viper.GetString("output") {
	case "json", "yaml":
	default:
		return fmt.Errorf("output must be json or yaml")
	}
	return nil
}

func newLogger() zerolog.Logger {
	return logger.New(logger.Options{Level: viper.GetString("log-level"), Format: "pretty"}).Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func newClient() *client.Client {
	return client.New(client.Options{
		BaseURL: viper.GetString("server"),
		Timeout: viper.GetDuration("timeout"),
		Logger:  newLogger(),
	})
}

// printOutput writes v as indented JSON or as block-style YAML with the
// same keys
func printOutput(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if viper.GetString("output") != "yaml" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("convert output: %w", err)
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// blockStyle clears the flow style JSON input produces
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Style&yaml.DoubleQuotedStyle != 0 && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// checkResult turns a failed write into a command error after printing it
func checkResult(cmd *cobra.Command, res client.Result, v interface{}) error {
	if err := printOutput(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("request failed: %s", res.Error)
	}
	if res.Warning != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", res.Warning)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
