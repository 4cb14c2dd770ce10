package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/eventos/apiserver/config"
	"github.com/eventos/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events on the message queue",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log user.registered events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := config.NewLogger(cfg.Logging)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is none; nothing to tail")
		}
		defer func() {
			if err := queue.Close(); err != nil {
				log.Warn().Err(err).Msg("close message queue")
			}
		}()

		channel := cfg.MQ.UserRegisteredChannel
		log.Info().Str("backend", cfg.MQ.Backend).Str("channel", channel).Msg("tailing events")

		err = queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
			event, err := mq.DecodeUserRegistered(msg)
			if err != nil {
				// Undecodable messages are dropped rather than redelivered forever.
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("skipping message")
				return nil
			}
			log.Info().
				Str("message_id", msg.ID).
				Str("user_id", event.UserID).
				Str("email", event.Email).
				Str("user_name", event.UserName).
				Str("role", event.Role).
				Time("occurred_at", event.OccurredAt).
				Time("published_at", msg.PublishedAt).
				Bool("redelivered", msg.Redelivered).
				Msg(event.Type)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
