package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goblincore/ige/internal/env"
	"github.com/goblincore/ige/stream"
	"github.com/goblincore/ige/transport"
)

var (
	// The server url to connect to
	serverURL string

	// The port to listen for debug http requests on
	httpPort string

	// Whether to expose the debug http endpoints at all
	debugHTTP bool

	// How often to send a round-trip probe request, 0 disables it
	probeInterval time.Duration
)

func init() {
	flags := ConnectCmd.PersistentFlags()

	flags.StringVarP(&serverURL, "url", "u", "", "The server url to connect to (ws:// or wss://)")
	flags.StringVar(&httpPort, "http-port", "7362", "The port to serve the debug HTTP endpoints on")
	flags.BoolVar(&debugHTTP, "debug-http", false, "Expose /ping and /stats debug endpoints")
	flags.DurationVar(&probeInterval, "probe", 0, "Send a round-trip probe request at this interval")
}

var ConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a game server and log its traffic",
	Long: `Connect to a game server and log its traffic

Dials the server, completes the command handshake, then subscribes to
every declared command and logs each frame as it arrives.

Usage
	ige connect --url ws://localhost:7363

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		if serverURL == "" {
			serverURL = conf.ServerURL
		}

		client := stream.New(stream.Options{
			Transport: transport.NewWebsocket(transport.Options{
				RateLimit: transport.DefaultRateLimit(),
				Log:       log.Named("transport"),
			}),
			RequestTimeout: conf.RequestTimeout,
			Log:            log.Named("stream"),
		})

		client.OnDisconnected(func(reason string) {
			// The stream already logged the details, just stop
			signalStop()
		})

		client.OnRequest(func(id, command string, data []byte) {
			log.Info("Server request",
				zap.String("id", id),
				zap.String("command", command),
				zap.ByteString("data", data))

			// Echo the request body back so the exchange completes
			client.Respond(id, data)
		})

		err = client.Start(ctx, serverURL, func() {
			for _, name := range client.Commands() {
				name := name
				client.On(name, func(payload []byte) {
					log.Info("Frame",
						zap.String("command", name),
						zap.ByteString("payload", payload))
				})
			}
		})
		if err != nil {
			return err
		}

		if probeInterval > 0 {
			go runProbe(ctx, client, log.Named("probe"))
		}

		var httpServer *http.Server
		if debugHTTP {
			httpServer = startDebugHTTP(client, log)
		}

		log.Info("Connected, press Ctrl+C to stop",
			zap.String("url", serverURL),
			zap.String("httpPort", httpPort))

		<-ctx.Done()
		signalStop()

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
			}
		}

		if err := client.Close(); err != nil {
			log.Warn("Connection did not close cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// runProbe issues a request on a timer and logs the observed round trip.
func runProbe(ctx context.Context, client *stream.Client, log *zap.Logger) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			started := time.Now()
			payload := []byte(strconv.FormatInt(started.UnixNano(), 10))

			client.Request("ping", payload, func(data []byte, err error) {
				if err != nil {
					log.Warn("Probe failed", zap.Error(err))
					return
				}

				log.Info("Probe round trip", zap.Duration("rtt", time.Since(started)))
			})
		}
	}
}

func startDebugHTTP(client *stream.Client, log *zap.Logger) *http.Server {
	router := setupRouter(log)

	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":           client.Ready(),
			"commands":        client.Commands(),
			"pendingRequests": client.PendingRequests(),
		})
	})

	s := &http.Server{
		Addr:    net.JoinHostPort("127.0.0.1", httpPort),
		Handler: router,
	}

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Http server errored", zap.Error(err))
		}
	}()

	return s
}

func setupRouter(log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Combined access/error log to stdout, RFC3339 with UTC time format.
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
