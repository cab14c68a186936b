package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketio-client/config"
	"github.com/kleeedolinux/socketio-client/debug"
	"github.com/kleeedolinux/socketio-client/socket"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand. Flags that are set win over
// the config file.
type globalFlags struct {
	configPath string
	url        string
	namespace  string
	transport  string
	debug      bool
}

func main() {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "sioctl",
		Short: "Talk to a Socket.IO server from the command line",
		Long: `sioctl connects to a Socket.IO v5 server and lets you watch or emit
events on a namespace.

Settings come from an optional TOML file (--config) and the flags below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to a TOML config file")
	pf.StringVarP(&g.url, "url", "u", "", "Server URL (default http://localhost:3000)")
	pf.StringVarP(&g.namespace, "namespace", "n", "", "Namespace to join (default /)")
	pf.StringVarP(&g.transport, "transport", "t", "", "Transport: websocket or polling")
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		listenCmd(g),
		emitCmd(g),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// load resolves the effective configuration and sets up logging.
func (g *globalFlags) load(cmd *cobra.Command) (config.Client, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return config.Client{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = g.url
	}
	if flags.Changed("namespace") {
		cfg.Namespace = g.namespace
	}
	if flags.Changed("transport") {
		cfg.Transport = g.transport
	}
	if err := config.Validate(cfg); err != nil {
		return config.Client{}, err
	}

	debug.Configure(cfg.LogSettings(debug.Current()))
	if g.debug {
		debug.Enable()
	}
	return cfg, nil
}

// dial builds a socket for cfg without connecting it, so callers can
// register listeners first.
func dial(cfg config.Client, extra ...socket.Option) (*socket.Socket, error) {
	opts := append(cfg.Options(debug.Logger()), socket.WithAutoConnect(false))
	return socket.Connect(cfg.URL, append(opts, extra...)...)
}
