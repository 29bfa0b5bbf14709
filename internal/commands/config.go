package commands

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/spf13/cobra"

	"github.com/gaborage/go-kintone/logger"
)

// NewConfigCommand creates the config command group
func NewConfigCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the merged configuration with secrets masked",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runConfigShow(cmd, global)
			},
		},
		&cobra.Command{
			Use:     "get KEY",
			Short:   "Print one configuration value with secrets masked",
			Example: `  kintone config get retry.max_attempts`,
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigGet(cmd, global, args[0])
			},
		},
	)

	return cmd
}

func runConfigShow(cmd *cobra.Command, global *GlobalOptions) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}

	filtered := logger.NewSensitiveDataFilter(nil).FilterFields(cfg.All())
	out, err := yaml.Parser().Marshal(filtered)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runConfigGet(cmd *cobra.Command, global *GlobalOptions, key string) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}

	v, ok := cfg.Get(key)
	if !ok {
		return fmt.Errorf("%s is not set", key)
	}
	v = logger.NewSensitiveDataFilter(nil).FilterValue(key, v)

	switch v.(type) {
	case map[string]any, []any:
		return printJSON(cmd.OutOrStdout(), v)
	default:
		_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
		return err
	}
}
