// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/config"
	"github.com/xkilldash9x/chartwise/internal/llmclient"
	"github.com/xkilldash9x/chartwise/internal/observability"
)

// viperKeyAnnotation marks a flag as an override for a configuration key.
const viperKeyAnnotation = "chartwise/viper-key"

// app is the state shared by every subcommand of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger

	// newLLM builds the model client. Tests replace it.
	newLLM func(config.LLMConfig, *zap.Logger) (schemas.LLMClient, error)
}

func newApp() *app {
	return &app{
		v: viper.New(),
		newLLM: func(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
			return llmclient.NewClient(cfg, logger)
		},
	}
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "chartwise",
		Short:         "Chartwise answers questions about financial dashboards and suggests actions on them.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}
	root.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./chartwise.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(flags, "log-level", "logger.level")
	flags.String("log-format", "", "log format (console or json)")
	bindFlag(flags, "log-format", "logger.format")

	root.AddCommand(
		newVersionCmd(),
		newAskCmd(a),
		newExtractCmd(a),
		newServeCmd(a),
		newPingCmd(a),
	)
	return root
}

// bindFlag annotates flag name so initialize binds it to key.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("flag %q is not defined", name))
	}
}

// initialize loads configuration with the precedence flags > environment >
// config file > defaults, then starts the logger.
func (a *app) initialize(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("chartwise")
		a.v.SetConfigType("yaml")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 || !f.Changed || bindErr != nil {
			return
		}
		bindErr = a.v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "chartwise"})
		return err
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	a.logger = observability.GetLogger()
	a.logger.Debug("Configuration loaded.", zap.String("version", Version), zap.String("config_file", a.v.ConfigFileUsed()))
	return nil
}

// Execute runs the command line against ctx.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.GetLogger().Debug("Command execution failed.", zap.Error(err))
	}
	return err
}
