package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hackdesk/triage/internal/output"
)

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Manage issue and channel owners",
	Long: `Manage ad-hoc owner grants. Owners can change status and priority
of the issues they own (or of every issue in an owned channel).`,
}

var ownerIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issue owners",
}

var ownerIssueAddCmd = &cobra.Command{
	Use:   "add <issue-id> <user-id>",
	Short: "Grant a user ownership of an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ownerIssueAddRun(args[0], args[1])
	},
}

var ownerIssueRemoveCmd = &cobra.Command{
	Use:   "remove <issue-id> <user-id>",
	Short: "Revoke a user's ownership of an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ownerIssueRemoveRun(args[0], args[1])
	},
}

var ownerChannelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage channel owners",
}

var ownerChannelAddCmd = &cobra.Command{
	Use:   "add <channel-id> <user-id>",
	Short: "Grant a user ownership of a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ownerChannelAddRun(args[0], args[1])
	},
}

var ownerChannelRemoveCmd = &cobra.Command{
	Use:   "remove <channel-id> <user-id>",
	Short: "Revoke a user's ownership of a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ownerChannelRemoveRun(args[0], args[1])
	},
}

func init() {
	ownerIssueCmd.AddCommand(ownerIssueAddCmd)
	ownerIssueCmd.AddCommand(ownerIssueRemoveCmd)
	ownerChannelCmd.AddCommand(ownerChannelAddCmd)
	ownerChannelCmd.AddCommand(ownerChannelRemoveCmd)
	ownerCmd.AddCommand(ownerIssueCmd)
	ownerCmd.AddCommand(ownerChannelCmd)
	rootCmd.AddCommand(ownerCmd)
}

func ownerIssueAddRun(issueRef, userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, issueRef)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add %s as owner of issue %s", userID, shortID(issue.ID))
		return nil
	}

	if err := s.SetIssueOwner(ctx, issue.ID, userID); err != nil {
		return fmt.Errorf("set issue owner: %w", err)
	}
	ui.Success("%s now owns issue %s", output.Cyan(userID), shortID(issue.ID))
	return nil
}

func ownerIssueRemoveRun(issueRef, userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, issueRef)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove %s as owner of issue %s", userID, shortID(issue.ID))
		return nil
	}

	if err := s.RemoveIssueOwner(ctx, issue.ID, userID); err != nil {
		return fmt.Errorf("remove issue owner: %w", err)
	}
	ui.Success("%s no longer owns issue %s", output.Cyan(userID), shortID(issue.ID))
	return nil
}

func ownerChannelAddRun(channelID, userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add %s as owner of channel %s", userID, channelID)
		return nil
	}

	if err := s.SetChannelOwner(context.Background(), channelID, userID); err != nil {
		return fmt.Errorf("set channel owner: %w", err)
	}
	ui.Success("%s now owns channel %s", output.Cyan(userID), channelID)
	return nil
}

func ownerChannelRemoveRun(channelID, userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove %s as owner of channel %s", userID, channelID)
		return nil
	}

	if err := s.RemoveChannelOwner(context.Background(), channelID, userID); err != nil {
		return fmt.Errorf("remove channel owner: %w", err)
	}
	ui.Success("%s no longer owns channel %s", output.Cyan(userID), channelID)
	return nil
}
