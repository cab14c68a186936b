package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketio-client/socket"
	"github.com/kleeedolinux/socketio-client/socket/parser"
)

func emitCmd(g *globalFlags) *cobra.Command {
	var (
		wantAck bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "emit <event> [json-args...]",
		Short: "Emit one event and exit",
		Long: `Connect, emit an event and disconnect once it has been written.

Each argument is parsed as JSON; anything that is not valid JSON is sent
as a string. With --ack the command waits for the server's
acknowledgement and prints its arguments as a JSON array.`,
		Example: `  sioctl emit chat '{"text":"hi"}'
  sioctl emit --ack sum 1 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			values := parseArgs(args[1:])

			s, err := dial(cfg)
			if err != nil {
				return err
			}
			m := s.Manager()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				_ = m.Close(ctx)
			}()

			connected := make(chan error, 1)
			s.On(socket.EventConnect, func(*socket.Event) { notify(connected, nil) })
			s.On(socket.EventConnectError, func(e *socket.Event) { notify(connected, e.Err) })
			s.Connect()

			select {
			case err := <-connected:
				if err != nil {
					return fmt.Errorf("connect %s%s: %w", cfg.URL, s.Namespace(), err)
				}
			case <-time.After(timeout):
				return fmt.Errorf("connect %s%s: %w", cfg.URL, s.Namespace(), socket.ErrConnectTimeout)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			if !wantAck {
				return s.Emit(args[0], values...)
			}

			type reply struct {
				args []parser.Value
				err  error
			}
			replies := make(chan reply, 1)
			err = s.EmitWithAckTimeout(args[0], timeout, func(args []parser.Value, err error) {
				replies <- reply{args, err}
			}, values...)
			if err != nil {
				return err
			}

			select {
			case r := <-replies:
				if r.err != nil {
					return r.err
				}
				if r.args == nil {
					r.args = []parser.Value{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(r.args)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}

	cmd.Flags().BoolVarP(&wantAck, "ack", "a", false, "Wait for an acknowledgement")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for connect and ack")

	return cmd
}

// parseArgs turns command line arguments into event arguments.
func parseArgs(raw []string) []any {
	out := make([]any, 0, len(raw))
	for _, arg := range raw {
		if json.Valid([]byte(arg)) {
			out = append(out, json.RawMessage(arg))
			continue
		}
		out = append(out, arg)
	}
	return out
}

func notify(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
