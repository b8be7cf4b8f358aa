package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"editdesk/api/internal/handshake"
)

type contextSwap struct {
	Generation uint64            `json:"generation"`
	Context    handshake.Context `json:"context"`
}

func init() {
	var window string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow config updates sent to a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(busURL()) == "" {
				return errors.New("watch needs --redis or EDITDESK_REDIS_URL")
			}
			bus, err := openBus()
			if err != nil {
				return err
			}
			defer bus.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			unsubscribe, err := startWatch(ctx, bus.Window(window), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer unsubscribe()
			log.Info().Str("window", window).Msg("watching")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&window, "window", "", "Window id to listen on (required)")
	_ = cmd.MarkFlagRequired("window")

	RootCmd.AddCommand(cmd)
}

// startWatch applies every config update on ch to a fresh holder and writes
// one JSON line per context swap. Repeated updates are not printed again.
func startWatch(ctx context.Context, ch handshake.Channel, out io.Writer) (func(), error) {
	holder := handshake.NewHolder(handshake.Context{})
	enc := json.NewEncoder(out)
	return handshake.Listen(ctx, ch, func(msg handshake.Message) {
		if !holder.Apply(msg) {
			return
		}
		current, generation := holder.Current()
		if err := enc.Encode(contextSwap{Generation: generation, Context: current}); err != nil {
			log.Warn().Err(err).Msg("write context swap")
		}
	})
}
