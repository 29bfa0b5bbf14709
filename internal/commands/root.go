package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-kintone/config"
	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/logger"
	"github.com/gaborage/go-kintone/observability"
)

// GlobalOptions holds the persistent flags shared by every command
type GlobalOptions struct {
	ConfigFile   string
	BaseURL      string
	LogLevel     string
	GuestSpaceID int64
}

// NewRootCommand creates the kintone command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "kintone",
		Short: "Work with kintone records, files and apps",
		Long: `Command line client for the kintone REST API.

Connection settings come from a YAML file, KINTONE_* environment variables
and the flags below, in increasing order of priority.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Config file (default $KINTONE_CONFIG_FILE or ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "kintone domain, e.g. https://example.cybozu.com")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int64Var(&opts.GuestSpaceID, "guest-space", 0, "Guest space ID")

	cmd.AddCommand(
		NewRecordCommand(opts),
		NewFileCommand(opts),
		NewAppCommand(opts),
		NewSpaceCommand(opts),
		NewConfigCommand(opts),
		NewVersionCommand(version),
	)

	return cmd
}

func (o *GlobalOptions) configPath() string {
	if o.ConfigFile != "" {
		return o.ConfigFile
	}
	if path := os.Getenv(config.EnvConfigFile); path != "" {
		return path
	}
	return config.DefaultConfigFile
}

func (o *GlobalOptions) overrides() map[string]any {
	overrides := map[string]any{}
	if o.BaseURL != "" {
		overrides["base_url"] = o.BaseURL
	}
	if o.LogLevel != "" {
		overrides["log.level"] = o.LogLevel
	}
	if o.GuestSpaceID != 0 {
		overrides["guest_space_id"] = o.GuestSpaceID
	}
	return overrides
}

// loadConfig reads the config file and environment, then applies flags
func (o *GlobalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFileWithOverrides(o.configPath(), o.overrides())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a configured client together with its telemetry provider
type session struct {
	client   *kintone.Client
	provider observability.Provider
	log      logger.Logger
}

func (s *session) close() {
	if err := observability.Shutdown(s.provider, observability.DefaultShutdownTimeout); err != nil {
		s.log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

// connect builds a client for cmd. Logs go to the command's error stream so
// that standard output carries only results.
func (o *GlobalOptions) connect(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty, nil)

	provider, err := observability.NewProvider(&cfg.Observability, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	b, err := kintone.BuilderFromConfig(cfg, log)
	if err != nil {
		_ = observability.Shutdown(provider, observability.DefaultShutdownTimeout)
		return nil, err
	}
	if cfg.Observability.Enabled {
		b.WithTracing(provider.TracerProvider()).WithMetrics(provider.MeterProvider())
	}

	client, err := b.Build()
	if err != nil {
		_ = observability.Shutdown(provider, observability.DefaultShutdownTimeout)
		return nil, err
	}

	return &session{client: client, provider: provider, log: log}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSONArg decodes a literal JSON document, or the file named after a
// leading "@", or standard input for "@-".
func readJSONArg(cmd *cobra.Command, arg string, v any) error {
	data := []byte(arg)
	switch {
	case arg == "@-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		data = b
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", arg[1:], err)
		}
		data = b
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
