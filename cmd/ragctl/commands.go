package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/pkg/events"
	pktNats "doc-chat-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	askFile         string
	askSync         bool
	purgeTranscript bool
	natsURL         string
)

var errScopeRequired = errors.New("--user and --session are required")

func requireScope() error {
	if userID == "" || sessionID == "" {
		return errScopeRequired
	}
	return nil
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question in a session and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireScope(); err != nil {
			return err
		}
		q := url.Values{}
		q.Set("user_input", strings.Join(args, " "))
		q.Set("user_id", userID)
		q.Set("session_id", sessionID)
		if askFile != "" {
			q.Set("file_path", askFile)
		}

		client := newClient()
		if askSync {
			var res dto.SyncTurnResponse
			if err := client.get("/subscribe/sync", q, &res); err != nil {
				return err
			}
			color.New(color.FgHiBlack).Fprintf(cmd.OutOrStdout(), "[%s · %s]\n", res.QaId, res.Mode)
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			return nil
		}

		err := client.stream(q, func(fragment string) {
			fmt.Fprint(cmd.OutOrStdout(), fragment)
		})
		fmt.Fprintln(cmd.OutOrStdout())
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the completed turns of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireScope(); err != nil {
			return err
		}
		q := url.Values{}
		q.Set("user_id", userID)
		q.Set("session_id", sessionID)

		var items []dto.HistoryItem
		if err := newClient().get("/subscribe/history", q, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			cmd.Println("No turns yet.")
			return nil
		}
		question := color.New(color.FgCyan, color.Bold)
		for _, item := range items {
			question.Fprintf(cmd.OutOrStdout(), "%s ▸ %s\n", item.QaId, item.Question)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", item.Answer)
		}
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session [first message]",
	Short: "Create a new session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			return errors.New("--user is required")
		}
		var res dto.CreateSessionResponse
		err := newClient().postJSON("/subscribe/session", dto.CreateSessionRequest{
			UserInput: strings.Join(args, " "),
			UserId:    userID,
		}, &res)
		if err != nil {
			return err
		}
		color.Green("✓ session %s", res.SessionId)
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a document into a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireScope(); err != nil {
			return err
		}
		var res struct {
			FilePath string `json:"file_path"`
		}
		err := newClient().upload("/file/upload", map[string]string{
			"user_id":    userID,
			"session_id": sessionID,
		}, args[0], &res)
		if err != nil {
			return err
		}
		color.Green("✓ stored at %s (indexing in background)", res.FilePath)
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove a session's documents, history and files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionID == "" {
			return errors.New("--session is required")
		}
		q := url.Values{}
		q.Set("session_id", sessionID)
		q.Set("purge_transcript", strconv.FormatBool(purgeTranscript))

		var res dto.CleanupResponse
		if err := newClient().get("/subscribe/clean", q, &res); err != nil {
			return err
		}
		color.Green("✓ removed %d chunks, %d turns (files removed: %t)", res.ChunksRemoved, res.TurnsRemoved, res.FilesRemoved)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail domain events from NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := pktNats.NewSubscriber(natsURL, logger.NewNopLogger())
		if err != nil {
			return err
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		label := color.New(color.FgYellow, color.Bold)
		stopSub, err := sub.Subscribe(ctx, pktNats.Subject(">"), "", func(_ context.Context, e events.Event) error {
			label.Fprintf(cmd.OutOrStdout(), "%s ", e.EventType())
			fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", e.Timestamp().Format("15:04:05"), e.Payload())
			return nil
		})
		if err != nil {
			return err
		}
		defer stopSub()

		color.New(color.FgHiBlack).Fprintln(cmd.OutOrStdout(), "watching events, Ctrl-C to stop")
		<-ctx.Done()
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "server-side path of a document to ingest first")
	askCmd.Flags().BoolVar(&askSync, "sync", false, "wait for the full answer instead of streaming")
	cleanCmd.Flags().BoolVar(&purgeTranscript, "purge-transcript", false, "also delete the stored conversation")
	watchCmd.Flags().StringVar(&natsURL, "nats", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")

	rootCmd.AddCommand(askCmd, historyCmd, sessionCmd, uploadCmd, cleanCmd, watchCmd)
}
