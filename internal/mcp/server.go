package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/perm"
	"github.com/hackdesk/triage/internal/store"
)

// Server wraps the triage data layer and exposes it as MCP tools.
type Server struct {
	store store.Store
	perm  *perm.Resolver
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, resolver *perm.Resolver) *Server {
	return &Server{store: s, perm: resolver}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("triage", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.setStatusTool())
	srv.AddTool(s.setPriorityTool())
	srv.AddTool(s.listProgramsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// triage_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_list_issues",
		mcp.WithDescription("List tracked support issues, optionally filtered by status, priority, and/or program. Returns a JSON array of issues with id, title, status (unverified/in_progress/resolved/closed), priority (low/medium/high), source, and thread_key."),
		mcp.WithString("status", mcp.Description("Status filter: unverified, in_progress, resolved, closed")),
		mcp.WithString("priority", mcp.Description("Priority filter: low, medium, high")),
		mcp.WithString("program", mcp.Description("Program ID to filter by")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueListFilter{
		Status:   models.IssueStatus(request.GetString("status", "")),
		Priority: models.IssuePriority(request.GetString("priority", "")),
	}

	if program := request.GetString("program", ""); program != "" {
		p, err := s.resolveProgram(ctx, program)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("program not found: %s", program)), nil
		}
		filter.ProgramID = p.ID
	}

	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	type issueOut struct {
		ID        string `json:"id"`
		ProgramID string `json:"program_id,omitempty"`
		Title     string `json:"title"`
		Status    string `json:"status"`
		Priority  string `json:"priority"`
		Source    string `json:"source"`
		ThreadKey string `json:"thread_key"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = issueOut{
			ID:        issue.ID,
			ProgramID: issue.ProgramID,
			Title:     issue.Title,
			Status:    string(issue.Status),
			Priority:  string(issue.Priority),
			Source:    issue.Source,
			ThreadKey: issue.ThreadKey,
			CreatedAt: issue.CreatedAt.Format(time.RFC3339),
			UpdatedAt: issue.UpdatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issues: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// triage_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_get_issue",
		mcp.WithDescription("Get a single issue with its conversation events and participants. Resolves the issue by full ID or unique prefix."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	events, _ := s.store.ListIssueEvents(ctx, issue.ID)
	participants, _ := s.store.ListParticipants(ctx, issue.ID)

	eventsOut := make([]map[string]any, len(events))
	for i, event := range events {
		eventsOut[i] = map[string]any{
			"id":         event.ID,
			"author":     event.Author,
			"body":       event.Body,
			"event_type": event.EventType,
			"created_at": event.CreatedAt.Format(time.RFC3339),
		}
	}
	participantsOut := make([]map[string]any, len(participants))
	for i, p := range participants {
		participantsOut[i] = map[string]any{
			"user": p.UserID,
			"role": string(p.Role),
		}
	}

	result := map[string]any{
		"issue": map[string]any{
			"id":          issue.ID,
			"program_id":  issue.ProgramID,
			"title":       issue.Title,
			"description": issue.Description,
			"status":      string(issue.Status),
			"priority":    string(issue.Priority),
			"source":      issue.Source,
			"thread_key":  issue.ThreadKey,
			"created_at":  issue.CreatedAt.Format(time.RFC3339),
			"updated_at":  issue.UpdatedAt.Format(time.RFC3339),
		},
		"events":       eventsOut,
		"participants": participantsOut,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// triage_set_status
func (s *Server) setStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_set_status",
		mcp.WithDescription("Set an issue's status. The acting user must have owner permission or above for the issue. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: unverified, in_progress, resolved, closed")),
		mcp.WithString("user", mcp.Required(), mcp.Description("External user ID performing the change")),
	)
	return tool, s.handleSetStatus
}

func (s *Server) handleSetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleMutation(ctx, request, "status", func(issue *models.Issue, value string) {
		issue.Status = models.IssueStatus(value)
	})
}

// triage_set_priority
func (s *Server) setPriorityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_set_priority",
		mcp.WithDescription("Set an issue's priority. The acting user must have owner permission or above for the issue. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("priority", mcp.Required(), mcp.Description("New priority: low, medium, high")),
		mcp.WithString("user", mcp.Required(), mcp.Description("External user ID performing the change")),
	)
	return tool, s.handleSetPriority
}

func (s *Server) handleSetPriority(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleMutation(ctx, request, "priority", func(issue *models.Issue, value string) {
		issue.Priority = models.IssuePriority(value)
	})
}

// handleMutation runs the shared guard-then-update flow for the issue
// mutator tools. field names the required parameter holding the value.
func (s *Server) handleMutation(ctx context.Context, request mcp.CallToolRequest, field string, apply func(*models.Issue, string)) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	value, err := request.RequireString(field)
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: " + field), nil
	}
	userID, err := request.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user"), nil
	}

	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	channelID := channelFromThreadKey(issue.ThreadKey)
	if err := s.perm.Require(ctx, userID, perm.LevelOwner, channelID, issue.ID); err != nil {
		var denied *perm.DeniedError
		if errors.As(err, &denied) {
			return mcp.NewToolResultError(denied.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("permission check failed: %v", err)), nil
	}

	apply(issue, value)
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}

	result := map[string]any{
		"id":         issue.ID,
		"title":      issue.Title,
		"status":     string(issue.Status),
		"priority":   string(issue.Priority),
		"updated_at": issue.UpdatedAt.Format(time.RFC3339),
	}
	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// triage_list_programs
func (s *Server) listProgramsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_list_programs",
		mcp.WithDescription("List all programs. Returns a JSON array of programs with id, program_id, name, owners, and channels."),
	)
	return tool, s.handleListPrograms
}

func (s *Server) handleListPrograms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	programs, err := s.store.ListPrograms(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list programs: %v", err)), nil
	}

	out := make([]map[string]any, len(programs))
	for i, p := range programs {
		out[i] = map[string]any{
			"id":          p.ID,
			"program_id":  p.ProgramID,
			"name":        p.Name,
			"description": p.Description,
			"owners":      p.Owners,
			"channels":    p.Channels,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal programs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveProgram tries the external program id first, then the ULID.
func (s *Server) resolveProgram(ctx context.Context, id string) (*models.Program, error) {
	if p, err := s.store.GetProgramByExternalID(ctx, id); err == nil {
		return p, nil
	}
	if p, err := s.store.GetProgram(ctx, id); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("program not found: %s", id)
}

// findIssue finds an issue by full ID or unique prefix.
func (s *Server) findIssue(ctx context.Context, id string) (*models.Issue, error) {
	if issue, err := s.store.GetIssue(ctx, id); err == nil {
		return issue, nil
	}

	upper := strings.ToUpper(id)
	issues, err := s.store.ListIssues(ctx, store.IssueListFilter{})
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

// channelFromThreadKey extracts the channel part of a composite thread
// key. Legacy bare-timestamp keys return "".
func channelFromThreadKey(key string) string {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[0]
}
