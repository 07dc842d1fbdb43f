package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/appgallery-cms/internal/models"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List, import and delete app listings",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List apps, optionally one type partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		typ, _ := cmd.Flags().GetString("type")

		var apps []models.AppItem
		if typ != "" {
			apps = c.LoadAppsByType(cmd.Context(), typ)
		} else {
			apps = c.LoadApps(cmd.Context())
		}
		return printOutput(cmd.OutOrStdout(), apps)
	},
}

var appsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace apps from a JSON file",
	Long: `Replace apps from a JSON file holding an array of apps or {"apps": [...]}.

With --type only that partition is replaced; items with an id outside the
type's range are rejected by the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apps, err := readList[models.AppItem](args[0], "apps")
		if err != nil {
			return err
		}

		c := newClient()
		typ, _ := cmd.Flags().GetString("type")
		if typ != "" {
			res := c.SaveAppsByType(cmd.Context(), typ, apps)
			return checkResult(cmd, res.Result, res)
		}
		res := c.SaveApps(cmd.Context(), apps)
		return checkResult(cmd, res, res)
	},
}

var appsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an app with its files and membership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := newClient().DeleteApp(cmd.Context(), args[0])
		return checkResult(cmd, res, res)
	},
}

// readList decodes a file holding a bare array or an object with the array
// under field
func readList[T any](path, field string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	raw, ok := wrapped[field]
	if !ok {
		return nil, fmt.Errorf("%s has no %q array", path, field)
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", path, field, err)
	}
	return items, nil
}

func init() {
	appsListCmd.Flags().String("type", "", "Only list this type partition (e.g. gallery)")
	appsImportCmd.Flags().String("type", "", "Replace only this type partition")

	appsCmd.AddCommand(appsListCmd, appsImportCmd, appsDeleteCmd)
	rootCmd.AddCommand(appsCmd)
}
