package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackdesk/triage/internal/ai"
	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/output"
	"github.com/hackdesk/triage/internal/store"
)

var (
	issueStatus   string
	issuePriority string
	issueProgram  string
	issueEvents   bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage tracked support issues",
	Long:  "Inspect and update issues created from support threads.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueSetStatusCmd = &cobra.Command{
	Use:   "set-status <issue-id> <status>",
	Short: "Set issue status",
	Long:  "Set issue status. Valid statuses: unverified, in_progress, resolved, closed.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSetStatusRun(args[0], args[1])
	},
}

var issueSetPriorityCmd = &cobra.Command{
	Use:   "set-priority <issue-id> <priority>",
	Short: "Set issue priority",
	Long:  "Set issue priority. Valid priorities: low, medium, high.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSetPriorityRun(args[0], args[1])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:   "delete <issue-id>",
	Short: "Soft-delete an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

func init() {
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: unverified, in_progress, resolved, closed")
	issueListCmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority: low, medium, high")
	issueListCmd.Flags().StringVar(&issueProgram, "program", "", "Filter by program ID")

	issueShowCmd.Flags().BoolVar(&issueEvents, "events", false, "Show conversation events")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueSetStatusCmd)
	issueCmd.AddCommand(issueSetPriorityCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.IssueListFilter{
		Status:   models.IssueStatus(issueStatus),
		Priority: models.IssuePriority(issuePriority),
	}
	if issueProgram != "" {
		p, err := findProgram(ctx, s, issueProgram)
		if err != nil {
			return err
		}
		filter.ProgramID = p.ID
	}

	issues, err := s.ListIssues(ctx, filter)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	// Program name cache for display
	programNames := make(map[string]string)

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Program", "Source"})
	for _, issue := range issues {
		progName := programNames[issue.ProgramID]
		if progName == "" && issue.ProgramID != "" {
			if p, err := s.GetProgram(ctx, issue.ProgramID); err == nil {
				progName = p.Name
				programNames[issue.ProgramID] = progName
			}
		}

		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			progName,
			issue.Source,
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	progName := ""
	if issue.ProgramID != "" {
		if p, err := s.GetProgram(ctx, issue.ProgramID); err == nil {
			progName = p.Name
		}
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	if progName != "" {
		fmt.Fprintf(ui.Out, "  Program:    %s\n", progName)
	}
	fmt.Fprintf(ui.Out, "  Source:     %s\n", issue.Source)
	if issue.ThreadKey != "" {
		fmt.Fprintf(ui.Out, "  Thread:     %s\n", issue.ThreadKey)
	}
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", indentLines(issue.Description, "              "))
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	participants, _ := s.ListParticipants(ctx, issue.ID)
	if len(participants) > 0 {
		parts := make([]string, len(participants))
		for i, p := range participants {
			parts[i] = fmt.Sprintf("%s (%s)", p.UserID, p.Role)
		}
		fmt.Fprintf(ui.Out, "  People:     %s\n", strings.Join(parts, ", "))
	}

	if issueEvents {
		events, err := s.ListIssueEvents(ctx, issue.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out)
		for _, event := range events {
			fmt.Fprintf(ui.Out, "  [%s] %s: %s\n",
				event.CreatedAt.Format("2006-01-02 15:04"), output.Cyan(event.Author), event.Body)
			if event.AIMetadata != "" {
				if summary := ai.DecodeSummary(event.AIMetadata); summary != nil && summary.Summary != "" {
					fmt.Fprintf(ui.Out, "      %s %s\n", output.Yellow("summary:"), summary.Summary)
				}
			}
		}
	}

	return nil
}

func issueSetStatusRun(id, status string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set issue %s status to %s", shortID(issue.ID), status)
		return nil
	}

	old := issue.Status
	issue.Status = models.IssueStatus(status)
	if err := s.UpdateIssue(ctx, issue); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Issue %s: %s -> %s", output.Cyan(shortID(issue.ID)), old, issue.Status)
	return nil
}

func issueSetPriorityRun(id, priority string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set issue %s priority to %s", shortID(issue.ID), priority)
		return nil
	}

	issue.Priority = models.IssuePriority(priority)
	if err := s.UpdateIssue(ctx, issue); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Issue %s priority set to %s", output.Cyan(shortID(issue.ID)), issue.Priority)
	return nil
}

func issueDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}

	if err := s.SoftDeleteIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}

	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

// findIssue finds an issue by full ID or prefix match.
func findIssue(ctx context.Context, s store.Store, id string) (*models.Issue, error) {
	// Try exact match first
	if issue, err := s.GetIssue(ctx, id); err == nil {
		return issue, nil
	}

	// Try prefix match - list all and filter
	upper := strings.ToUpper(id)
	issues, err := s.ListIssues(ctx, store.IssueListFilter{})
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// indentLines indents continuation lines of a multi-line value so it
// stays aligned in the detail view.
func indentLines(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
