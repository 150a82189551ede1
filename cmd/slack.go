package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hackdesk/triage/internal/ai"
	"github.com/hackdesk/triage/internal/ingest"
	"github.com/hackdesk/triage/internal/registry"
	"github.com/hackdesk/triage/internal/slack"
)

var slackCmd = &cobra.Command{
	Use:   "slack",
	Short: "Run the Slack socket-mode listener",
	Long: `Connect to Slack over Socket Mode and track support threads.

Mention the bot inside a thread to start tracking it as an issue.
Follow-up replies in tracked threads are recorded automatically.
Requires slack.bot_token and slack.app_token to be configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		botToken := viper.GetString("slack.bot_token")
		appToken := viper.GetString("slack.app_token")
		if botToken == "" || appToken == "" {
			return fmt.Errorf("slack.bot_token and slack.app_token must be configured")
		}

		s, err := getStore()
		if err != nil {
			return err
		}

		log := newLogger()
		client := slack.New(nil, viper.GetString("slack.base_url"), botToken, appToken)
		pipeline := ai.NewPipeline(s, getGenerator(), log)
		svc := ingest.New(s, registry.New(s), pipeline, "slack", log)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		identity, err := client.AuthTest(ctx)
		if err != nil {
			return fmt.Errorf("slack auth test: %w", err)
		}
		ui.Info("Connected as %s (team %s)", identity.User, identity.Team)

		handler := &threadHandler{client: client, ingest: svc, botUserID: identity.UserID, log: log}
		listener := slack.NewListener(client, handler, log)
		return listener.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(slackCmd)
}

// threadHandler reacts to mentions and thread replies.
type threadHandler struct {
	client    *slack.Client
	ingest    *ingest.Service
	botUserID string
	log       *slog.Logger
}

// HandleAppMention starts tracking the mentioned thread.
func (h *threadHandler) HandleAppMention(ctx context.Context, ev slack.Event) {
	if ev.ThreadTS == "" {
		h.reply(ctx, ev.Channel, ev.TS,
			"Mention me inside a thread to track it as a support issue.")
		return
	}

	msgs, err := h.client.ThreadReplies(ctx, ev.Channel, ev.ThreadTS)
	if err != nil {
		h.log.Error("fetch thread replies", "channel", ev.Channel, "thread", ev.ThreadTS, "error", err)
		h.reply(ctx, ev.Channel, ev.ThreadTS, "Sorry, I could not read this thread.")
		return
	}

	ingestMsgs := make([]ingest.Message, 0, len(msgs))
	for _, m := range msgs {
		// Skip the mention message itself so the bot ping does not
		// become part of the conversation record.
		if m.User == h.botUserID || m.TS == ev.TS {
			continue
		}
		ingestMsgs = append(ingestMsgs, ingest.Message{
			Author:         m.Author(),
			Body:           m.Text,
			ExternalID:     m.TS,
			AttachmentURLs: m.AttachmentURLs(),
		})
	}

	result, err := h.ingest.IngestThread(ctx, ev.Channel, ev.ThreadTS, ingestMsgs, ev.User)
	if err != nil {
		h.log.Error("ingest thread", "channel", ev.Channel, "thread", ev.ThreadTS, "error", err)
		h.reply(ctx, ev.Channel, ev.ThreadTS, "Sorry, something went wrong tracking this thread.")
		return
	}

	if !result.Created {
		h.reply(ctx, ev.Channel, ev.ThreadTS,
			fmt.Sprintf(":warning: This thread is already tracked as issue `%s` (status: %s).",
				shortID(result.Issue.ID), result.Issue.Status))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, ":white_check_mark: Now tracking this thread as issue `%s`\n", shortID(result.Issue.ID))
	fmt.Fprintf(&b, "*Title:* %s\n", result.Issue.Title)
	fmt.Fprintf(&b, "*Status:* %s | *Messages:* %d | *Participants:* %d",
		result.Issue.Status, result.EventCount, result.Participants)
	h.reply(ctx, ev.Channel, ev.ThreadTS, b.String())
}

// HandleMessage records replies in threads that are already tracked.
func (h *threadHandler) HandleMessage(ctx context.Context, ev slack.Event) {
	if ev.ThreadTS == "" || ev.User == h.botUserID {
		return
	}

	msg := ingest.Message{
		Author:     ev.User,
		Body:       ev.Text,
		ExternalID: ev.TS,
	}
	if _, err := h.ingest.AppendMessage(ctx, ev.Channel, ev.ThreadTS, msg); err != nil {
		if ingest.IsNotTracked(err) {
			return
		}
		h.log.Error("append message", "channel", ev.Channel, "thread", ev.ThreadTS, "error", err)
	}
}

func (h *threadHandler) reply(ctx context.Context, channelID, threadTS, text string) {
	if err := h.client.PostMessage(ctx, channelID, threadTS, text); err != nil {
		h.log.Error("post reply", "channel", channelID, "thread", threadTS, "error", err)
	}
}
