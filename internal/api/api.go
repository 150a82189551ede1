// Package api provides the dashboard REST handlers. Every mutation is
// gated by the permission resolver before any side effect runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/perm"
	"github.com/hackdesk/triage/internal/store"
)

// Notifier posts status-change notices back to the conversation thread.
// Implemented by the slack client; nil disables notifications.
type Notifier interface {
	PostMessage(ctx context.Context, channelID, threadTS, text string) error
}

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	perm     *perm.Resolver
	notifier Notifier
	log      *slog.Logger
}

// NewServer creates a new API server. notifier may be nil.
func NewServer(s store.Store, resolver *perm.Resolver, notifier Notifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: s, perm: resolver, notifier: notifier, log: log}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("GET /api/v1/issues/{id}/events", s.listIssueEvents)
	mux.HandleFunc("PATCH /api/v1/issues/{id}/status", s.updateIssueStatus)
	mux.HandleFunc("PATCH /api/v1/issues/{id}/priority", s.updateIssuePriority)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}/owners/{user}", s.addIssueOwner)
	mux.HandleFunc("DELETE /api/v1/issues/{id}/owners/{user}", s.removeIssueOwner)

	mux.HandleFunc("GET /api/v1/programs", s.listPrograms)
	mux.HandleFunc("POST /api/v1/programs", s.createProgram)
	mux.HandleFunc("PUT /api/v1/programs/{id}", s.updateProgram)
	mux.HandleFunc("DELETE /api/v1/programs/{id}", s.deleteProgram)

	mux.HandleFunc("PUT /api/v1/channels/{id}/owners/{user}", s.addChannelOwner)
	mux.HandleFunc("DELETE /api/v1/channels/{id}/owners/{user}", s.removeChannelOwner)

	mux.HandleFunc("GET /api/v1/me", s.me)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Triage-User")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// caller returns the external user id of the requester.
func caller(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Triage-User"))
}

// require runs the permission guard. On denial it writes the 403 and
// returns false, so the caller skips the action entirely.
func (s *Server) require(w http.ResponseWriter, r *http.Request, required perm.Level, channelID, issueID string) bool {
	userID := caller(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "X-Triage-User header is required")
		return false
	}
	err := s.perm.Require(r.Context(), userID, required, channelID, issueID)
	if err == nil {
		return true
	}
	var denied *perm.DeniedError
	if errors.As(err, &denied) {
		writeError(w, http.StatusForbidden, denied.Error())
		return false
	}
	writeError(w, http.StatusInternalServerError, err.Error())
	return false
}

// splitThreadKey decodes a composite thread key. ok is false for legacy
// bare-timestamp keys, which carry no channel info.
func splitThreadKey(key string) (channelID, threadTS string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// --- Issues ---

type issueOut struct {
	ID          string  `json:"id"`
	ProgramID   string  `json:"program_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Source      string  `json:"source"`
	ThreadKey   string  `json:"thread_key"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func issueJSON(issue *models.Issue) issueOut {
	return issueOut{
		ID:          issue.ID,
		ProgramID:   issue.ProgramID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      string(issue.Status),
		Priority:    string(issue.Priority),
		Source:      issue.Source,
		ThreadKey:   issue.ThreadKey,
		CreatedAt:   issue.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   issue.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

type eventOut struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	EventType string `json:"event_type"`
	CreatedAt string `json:"created_at"`
}

func eventJSON(event *models.Event) eventOut {
	return eventOut{
		ID:        event.ID,
		Author:    event.Author,
		Body:      event.Body,
		EventType: event.EventType,
		CreatedAt: event.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	filter := store.IssueListFilter{
		Status:    models.IssueStatus(r.URL.Query().Get("status")),
		Priority:  models.IssuePriority(r.URL.Query().Get("priority")),
		ProgramID: r.URL.Query().Get("program"),
	}
	issues, err := s.store.ListIssues(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]issueOut, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issueJSON(issue))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	events, total, err := s.store.ListIssueEventsPage(r.Context(), id, 0, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	eventsOut := make([]eventOut, 0, len(events))
	for _, event := range events {
		eventsOut = append(eventsOut, eventJSON(event))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"issue":        issueJSON(issue),
		"events":       eventsOut,
		"total_events": total,
	})
}

func (s *Server) listIssueEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetIssue(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)

	events, total, err := s.store.ListIssueEventsPage(r.Context(), id, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	eventsOut := make([]eventOut, 0, len(events))
	for _, event := range events {
		eventsOut = append(eventsOut, eventJSON(event))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":       eventsOut,
		"total_events": total,
		"offset":       offset,
		"limit":        limit,
		"returned":     len(eventsOut),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) updateIssueStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	channelID, threadTS, hasChannel := splitThreadKey(issue.ThreadKey)
	if !s.require(w, r, perm.LevelOwner, channelID, issue.ID) {
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	oldStatus := issue.Status
	issue.Status = models.IssueStatus(body.Status)
	if err := s.store.UpdateIssue(r.Context(), issue); err != nil {
		writeStoreError(w, err)
		return
	}

	// Best-effort thread notification. Legacy keys carry no channel, so
	// there is nowhere to post.
	if s.notifier != nil && hasChannel {
		text := fmt.Sprintf("Status changed from *%s* to *%s* by %s", oldStatus, issue.Status, caller(r))
		if err := s.notifier.PostMessage(r.Context(), channelID, threadTS, text); err != nil {
			s.log.Warn("post status notification", "issue", issue.ID, "error", err)
		}
	} else if s.notifier != nil {
		s.log.Info("legacy thread key, skipping notification", "issue", issue.ID, "thread_key", issue.ThreadKey)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      issue.ID,
		"status":  string(issue.Status),
		"message": fmt.Sprintf("Status updated from %s to %s", oldStatus, issue.Status),
	})
}

func (s *Server) updateIssuePriority(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	channelID, _, _ := splitThreadKey(issue.ThreadKey)
	if !s.require(w, r, perm.LevelOwner, channelID, issue.ID) {
		return
	}

	var body struct {
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Priority == "" {
		writeError(w, http.StatusBadRequest, "priority is required")
		return
	}

	issue.Priority = models.IssuePriority(body.Priority)
	if err := s.store.UpdateIssue(r.Context(), issue); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       issue.ID,
		"priority": string(issue.Priority),
		"message":  "Priority updated successfully",
	})
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	channelID, _, _ := splitThreadKey(issue.ThreadKey)
	if !s.require(w, r, perm.LevelAdmin, channelID, issue.ID) {
		return
	}

	if err := s.store.SoftDeleteIssue(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addIssueOwner(w http.ResponseWriter, r *http.Request) {
	id, user := r.PathValue("id"), r.PathValue("user")
	if _, err := s.store.GetIssue(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.require(w, r, perm.LevelAdmin, "", id) {
		return
	}
	if err := s.store.SetIssueOwner(r.Context(), id, user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"issue": id, "owner": user})
}

func (s *Server) removeIssueOwner(w http.ResponseWriter, r *http.Request) {
	id, user := r.PathValue("id"), r.PathValue("user")
	if !s.require(w, r, perm.LevelAdmin, "", id) {
		return
	}
	if err := s.store.RemoveIssueOwner(r.Context(), id, user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addChannelOwner(w http.ResponseWriter, r *http.Request) {
	id, user := r.PathValue("id"), r.PathValue("user")
	if !s.require(w, r, perm.LevelAdmin, id, "") {
		return
	}
	if err := s.store.SetChannelOwner(r.Context(), id, user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel": id, "owner": user})
}

func (s *Server) removeChannelOwner(w http.ResponseWriter, r *http.Request) {
	id, user := r.PathValue("id"), r.PathValue("user")
	if !s.require(w, r, perm.LevelAdmin, id, "") {
		return
	}
	if err := s.store.RemoveChannelOwner(r.Context(), id, user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Programs ---

type programOut struct {
	ID          string   `json:"id"`
	ProgramID   string   `json:"program_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owners      []string `json:"owners"`
	Channels    []string `json:"channels"`
}

func programJSON(p *models.Program) programOut {
	owners, channels := p.Owners, p.Channels
	if owners == nil {
		owners = []string{}
	}
	if channels == nil {
		channels = []string{}
	}
	return programOut{
		ID:          p.ID,
		ProgramID:   p.ProgramID,
		Name:        p.Name,
		Description: p.Description,
		Owners:      owners,
		Channels:    channels,
	}
}

func (s *Server) listPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.store.ListPrograms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]programOut, 0, len(programs))
	for _, p := range programs {
		out = append(out, programJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createProgram(w http.ResponseWriter, r *http.Request) {
	if !s.require(w, r, perm.LevelAdmin, "", "") {
		return
	}

	var body struct {
		ProgramID   string   `json:"program_id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Owners      []string `json:"owners"`
		Channels    []string `json:"channels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.ProgramID == "" || body.Name == "" {
		writeError(w, http.StatusBadRequest, "program_id and name are required")
		return
	}

	p := &models.Program{
		ProgramID:   body.ProgramID,
		Name:        body.Name,
		Description: body.Description,
		Owners:      body.Owners,
		Channels:    body.Channels,
	}
	if err := s.store.CreateProgram(r.Context(), p); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, programJSON(p))
}

func (s *Server) updateProgram(w http.ResponseWriter, r *http.Request) {
	if !s.require(w, r, perm.LevelAdmin, "", "") {
		return
	}

	id := r.PathValue("id")
	p, err := s.store.GetProgram(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var body struct {
		Name        *string   `json:"name"`
		Description *string   `json:"description"`
		Owners      *[]string `json:"owners"`
		Channels    *[]string `json:"channels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Name != nil {
		p.Name = *body.Name
	}
	if body.Description != nil {
		p.Description = *body.Description
	}
	if body.Owners != nil {
		p.Owners = *body.Owners
	}
	if body.Channels != nil {
		p.Channels = *body.Channels
	}

	if err := s.store.UpdateProgram(r.Context(), p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, programJSON(p))
}

func (s *Server) deleteProgram(w http.ResponseWriter, r *http.Request) {
	if !s.require(w, r, perm.LevelAdmin, "", "") {
		return
	}

	id := r.PathValue("id")
	if err := s.store.SoftDeleteProgram(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Program deleted successfully"})
}

// --- Identity ---

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	userID := caller(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "X-Triage-User header is required")
		return
	}
	level, err := s.perm.Resolve(r.Context(), userID, r.URL.Query().Get("channel"), r.URL.Query().Get("issue"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     userID,
		"level":    level.String(),
		"is_admin": level == perm.LevelAdmin,
	})
}
