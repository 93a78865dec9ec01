package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goblincore/ige/internal/env"
	"github.com/goblincore/ige/internal/mockgame"
)

var (
	// The host to listen on
	mockHost string

	// The port to listen for websocket clients on
	mockPort int

	// How often the mock world state ticks
	mockTick time.Duration
)

func init() {
	flags := MockCmd.PersistentFlags()

	flags.IntVarP(&mockPort, "port", "p", 7363, "The port to listen for client connections on")
	flags.StringVarP(&mockHost, "host", "a", "0.0.0.0", "The host to listen on")
	flags.DurationVar(&mockTick, "tick", time.Second, "The world-state tick broadcast interval")
}

var MockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a mock game server for local testing",
	Long: `Run a mock game server for local testing

The mock server declares a small command table on connect, echoes request
envelopes back as responses, rebroadcasts chat frames, and pushes a
worldUpdate frame on every tick.

Usage
	ige mock --port 7363

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		server := mockgame.NewServer(mockgame.Options{
			Host:         mockHost,
			Port:         mockPort,
			TickInterval: mockTick,
			Log:          log.Named("mock"),
		})

		if err := server.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		signalStop()

		log.Info("Shutting down")

		if err := server.Stop(); err != nil {
			log.Error("Mock server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}
