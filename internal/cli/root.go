// Package cli implements the huddle command-line meeting client.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings are the resolved flag, env and file values.
type Settings struct {
	Server   string   `mapstructure:"server"`
	Identity string   `mapstructure:"identity"`
	LogLevel string   `mapstructure:"log-level"`
	Media    []string `mapstructure:"media"`
}

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Join small mesh video meetings from the terminal",
	Long: `huddle talks to a Huddle signaling server and keeps a direct WebRTC
connection to every other participant. Local media is synthetic.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(v.GetString("log-level"))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", "http://localhost:8080", "server base URL")
	pf.String("identity", "", "display name in the room")
	pf.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	pf.String("config", "", "config file (yaml)")
	pf.StringSlice("media", []string{"mic", "camera"}, "local media to publish: mic, camera, screen")
	bindFlags(pf)

	rootCmd.AddCommand(createCmd, joinCmd, existsCmd, participantsCmd)
}

// bindFlags wires flags into viper. Precedence: flag, HUDDLE_* env, config
// file, default.
func bindFlags(fs *pflag.FlagSet) {
	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)
}

func loadSettings() (*Settings, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.Server = strings.TrimRight(s.Server, "/")
	return &s, nil
}

func setupLogging(level string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
