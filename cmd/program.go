package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/output"
	"github.com/hackdesk/triage/internal/store"
)

var (
	programName     string
	programDesc     string
	programOwners   []string
	programChannels []string
)

var programCmd = &cobra.Command{
	Use:   "program",
	Short: "Manage programs",
	Long: `Manage programs. A program groups Slack channels under a set of
owners who get elevated permission on issues from those channels.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return programListRun()
	},
}

var programListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List programs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return programListRun()
	},
}

var programCreateCmd = &cobra.Command{
	Use:   "create <program-id>",
	Short: "Create a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return programCreateRun(args[0])
	},
}

var programShowCmd = &cobra.Command{
	Use:   "show <program-id>",
	Short: "Show program details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return programShowRun(args[0])
	},
}

var programUpdateCmd = &cobra.Command{
	Use:   "update <program-id>",
	Short: "Update a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return programUpdateRun(args[0])
	},
}

var programDeleteCmd = &cobra.Command{
	Use:   "delete <program-id>",
	Short: "Delete a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return programDeleteRun(args[0])
	},
}

func init() {
	programCreateCmd.Flags().StringVar(&programName, "name", "", "Program name (required)")
	programCreateCmd.Flags().StringVar(&programDesc, "desc", "", "Program description")
	programCreateCmd.Flags().StringSliceVar(&programOwners, "owner", nil, "Owner user ID (repeatable)")
	programCreateCmd.Flags().StringSliceVar(&programChannels, "channel", nil, "Channel ID (repeatable)")
	_ = programCreateCmd.MarkFlagRequired("name")

	programUpdateCmd.Flags().StringVar(&programName, "name", "", "New name")
	programUpdateCmd.Flags().StringVar(&programDesc, "desc", "", "New description")
	programUpdateCmd.Flags().StringSliceVar(&programOwners, "owner", nil, "Replace owners (repeatable)")
	programUpdateCmd.Flags().StringSliceVar(&programChannels, "channel", nil, "Replace channels (repeatable)")

	programCmd.AddCommand(programListCmd)
	programCmd.AddCommand(programCreateCmd)
	programCmd.AddCommand(programShowCmd)
	programCmd.AddCommand(programUpdateCmd)
	programCmd.AddCommand(programDeleteCmd)
	rootCmd.AddCommand(programCmd)
}

func programListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	programs, err := s.ListPrograms(context.Background())
	if err != nil {
		return err
	}

	if len(programs) == 0 {
		ui.Info("No programs found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Owners", "Channels"})
	for _, p := range programs {
		_ = table.Append([]string{
			p.ProgramID,
			p.Name,
			fmt.Sprintf("%d", len(p.Owners)),
			fmt.Sprintf("%d", len(p.Channels)),
		})
	}
	_ = table.Render()
	return nil
}

func programCreateRun(programID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	p := &models.Program{
		ProgramID:   programID,
		Name:        programName,
		Description: programDesc,
		Owners:      programOwners,
		Channels:    programChannels,
	}

	if dryRun {
		ui.DryRunMsg("Would create program %s (%s)", programID, programName)
		return nil
	}

	if err := s.CreateProgram(context.Background(), p); err != nil {
		return fmt.Errorf("create program: %w", err)
	}

	ui.Success("Created program %s: %s", output.Cyan(programID), programName)
	return nil
}

func programShowRun(programID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := findProgram(ctx, s, programID)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(p.ProgramID), p.Name)
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", p.Description)
	}
	fmt.Fprintf(ui.Out, "  Owners:     %s\n", strings.Join(p.Owners, ", "))
	fmt.Fprintf(ui.Out, "  Channels:   %s\n", strings.Join(p.Channels, ", "))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", p.ID)

	issues, err := s.ListIssues(ctx, store.IssueListFilter{ProgramID: p.ID})
	if err == nil {
		fmt.Fprintf(ui.Out, "  Issues:     %d\n", len(issues))
	}
	return nil
}

func programUpdateRun(programID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := findProgram(ctx, s, programID)
	if err != nil {
		return err
	}

	changed := false
	if programName != "" {
		p.Name = programName
		changed = true
	}
	if programDesc != "" {
		p.Description = programDesc
		changed = true
	}
	if programOwners != nil {
		p.Owners = programOwners
		changed = true
	}
	if programChannels != nil {
		p.Channels = programChannels
		changed = true
	}

	if !changed {
		return fmt.Errorf("no updates specified (use --name, --desc, --owner, or --channel)")
	}

	if dryRun {
		ui.DryRunMsg("Would update program %s", p.ProgramID)
		return nil
	}

	if err := s.UpdateProgram(ctx, p); err != nil {
		return fmt.Errorf("update program: %w", err)
	}

	ui.Success("Updated program %s", output.Cyan(p.ProgramID))
	return nil
}

func programDeleteRun(programID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := findProgram(ctx, s, programID)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete program %s: %s", p.ProgramID, p.Name)
		return nil
	}

	if err := s.SoftDeleteProgram(ctx, p.ID); err != nil {
		return fmt.Errorf("delete program: %w", err)
	}

	ui.Success("Deleted program %s: %s", output.Cyan(p.ProgramID), p.Name)
	return nil
}

// findProgram resolves a program by external id, then ULID.
func findProgram(ctx context.Context, s store.Store, id string) (*models.Program, error) {
	if p, err := s.GetProgramByExternalID(ctx, id); err == nil {
		return p, nil
	}
	if p, err := s.GetProgram(ctx, id); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("program not found: %s", id)
}
