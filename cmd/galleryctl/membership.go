package main

import (
	"github.com/spf13/cobra"

	"github.com/appgallery-cms/internal/models"
)

// membershipCmd builds the command tree for one curated list
func membershipCmd(list models.MembershipList) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(list),
		Short: "Show and edit the " + string(list) + " list",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			if list == models.ListFeatured {
				return printOutput(cmd.OutOrStdout(), c.LoadFeaturedIDs(cmd.Context()))
			}
			return printOutput(cmd.OutOrStdout(), c.LoadEventIDs(cmd.Context()))
		},
	}

	for _, action := range []models.MembershipAction{models.ActionAdd, models.ActionRemove, models.ActionToggle} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   string(action) + " APP_ID",
			Short: string(action) + " one app",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				res := newClient().UpdateMembership(cmd.Context(), list, args[0], action)
				return checkResult(cmd, res.Result, res)
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "merge APP_ID...",
		Short: "Union ids into the list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			save := c.SaveEventIDs
			if list == models.ListFeatured {
				save = c.SaveFeaturedIDs
			}
			out := save(cmd.Context(), args)
			return checkResult(cmd, out, out)
		},
	})
	return cmd
}

func init() {
	rootCmd.AddCommand(membershipCmd(models.ListFeatured), membershipCmd(models.ListEvents))
}
