package main

import (
	"github.com/spf13/cobra"

	"github.com/appgallery-cms/internal/models"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "List, import and publish App Story and News items",
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List content, optionally one type",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		typ, _ := cmd.Flags().GetString("type")

		var items []models.ContentItem
		if typ != "" {
			items = c.LoadContentsByType(cmd.Context(), models.ContentType(typ))
		} else {
			items = c.LoadContents(cmd.Context())
		}
		return printOutput(cmd.OutOrStdout(), items)
	},
}

var contentImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace content from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := readList[models.ContentItem](args[0], "contents")
		if err != nil {
			return err
		}

		c := newClient()
		typ, _ := cmd.Flags().GetString("type")
		if typ != "" {
			res := c.SaveContentsByType(cmd.Context(), models.ContentType(typ), items)
			return checkResult(cmd, res.Result, res)
		}
		res := c.SaveContents(cmd.Context(), items)
		return checkResult(cmd, res, res)
	},
}

var contentPublishCmd = &cobra.Command{
	Use:   "publish ID",
	Short: "Publish a content item (--unpublish to hide it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unpublish, _ := cmd.Flags().GetBool("unpublish")
		res := newClient().SetPublished(cmd.Context(), args[0], !unpublish)
		return checkResult(cmd, res, res)
	},
}

func init() {
	contentListCmd.Flags().String("type", "", "Only list this type (appstory or news)")
	contentImportCmd.Flags().String("type", "", "Replace only this type (appstory or news)")
	contentPublishCmd.Flags().Bool("unpublish", false, "Unpublish instead")

	contentCmd.AddCommand(contentListCmd, contentImportCmd, contentPublishCmd)
	rootCmd.AddCommand(contentCmd)
}
