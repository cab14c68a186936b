package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketio-client/debug"
	"github.com/kleeedolinux/socketio-client/socket"
	"github.com/kleeedolinux/socketio-client/socket/parser"
)

// line is one JSON record written by listen.
type line struct {
	Time   time.Time      `json:"time"`
	Event  string         `json:"event"`
	Args   []parser.Value `json:"args,omitempty"`
	ID     string         `json:"id,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func listenCmd(g *globalFlags) *cobra.Command {
	var (
		events      []string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print events received on a namespace",
		Long: `Connect to the server and print every event received on the namespace
as one JSON object per line, until interrupted.

Use --event to print only the named events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var extra []socket.Option
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector())
				extra = append(extra, socket.WithMetrics(socket.NewMetrics(reg)))

				srv := metricsServer(metricsAddr, reg)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						debug.Logger().Error().Err(err).Str("addr", metricsAddr).Msg("metrics server failed")
					}
				}()
				defer srv.Close()
			}

			s, err := dial(cfg, extra...)
			if err != nil {
				return err
			}
			watch(s, cmd.OutOrStdout(), events)
			s.Connect()

			<-ctx.Done()

			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.Manager().Close(closeCtx)
		},
	}

	cmd.Flags().StringSliceVarP(&events, "event", "e", nil, "Only print these events (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

// watch prints lifecycle events and server events on s to w. Listeners run
// on the manager's event loop, so writes to w are serialised.
func watch(s *socket.Socket, w io.Writer, events []string) {
	enc := json.NewEncoder(w)
	write := func(l line) {
		l.Time = time.Now()
		if err := enc.Encode(l); err != nil {
			debug.Logger().Warn().Err(err).Str("event", l.Event).Msg("write failed")
		}
	}

	s.On(socket.EventConnect, func(e *socket.Event) {
		write(line{Event: e.Name, ID: e.Socket.ID()})
	})
	s.On(socket.EventDisconnect, func(e *socket.Event) {
		write(line{Event: e.Name, Reason: e.Reason})
	})
	s.On(socket.EventConnectError, func(e *socket.Event) {
		write(line{Event: e.Name, Error: e.Err.Error()})
	})

	log := debug.Logger()
	m := s.Manager()
	m.On(socket.EventReconnectAttempt, func(data any) {
		log.Info().Interface("attempt", data).Msg("reconnecting")
	})
	m.On(socket.EventReconnectFailed, func(any) {
		log.Error().Msg("gave up reconnecting")
	})

	printEvent := func(e *socket.Event) {
		write(line{Event: e.Name, Args: e.Args})
	}
	if len(events) == 0 {
		s.OnAny(printEvent)
		return
	}
	for _, name := range events {
		s.On(name, printEvent)
	}
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
