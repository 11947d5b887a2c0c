package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/application"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// AppContext carries the state shared by every subcommand. It is filled
// in by the root command's PersistentPreRunE.
type AppContext struct {
	Logger     *zap.Logger
	Config     *CLIConfig
	ResultsDir string

	viper   *viper.Viper
	cfgFile string
	debug   bool
}

// NewRootCmd builds the command tree with its own config state.
func NewRootCmd() *cobra.Command {
	app := &AppContext{viper: viper.New()}
	setDefaults(app.viper)

	root := &cobra.Command{
		Use:   "seca-gap",
		Short: "Security GAP analysis of web applications, APIs and policy document sets",
		Long: `seca-gap assesses targets against a catalogue of security controls and
records a pass, fail or not_tested verdict with a confidence score for each.

Only assess systems you are authorized to test.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Logger != nil {
				_ = app.Logger.Sync()
			}
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", sharedErrors.ErrConfig, err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "config file (default ./seca-gap.yaml or $HOME/seca-gap.yaml)")
	flags.BoolVar(&app.debug, "debug", false, "enable development logging")
	flags.String("results-dir", defaultResults, "directory for result files")
	flags.String("calibration", "", "YAML file overriding the confidence calibration")
	bindFlags(app.viper, flags, map[string]string{
		"results-dir": "results_dir",
		"calibration": "calibration_file",
	})

	root.AddCommand(
		newAssessCmd(app),
		newModulesCmd(),
		newMergeCmd(app),
		newValidateCmd(app),
		newServeCmd(app),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and exits with a code derived from the error.
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
	}
	os.Exit(exitCode(err))
}

func (a *AppContext) init() error {
	v := a.viper
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("%w: read config: %v", sharedErrors.ErrConfig, err)
		}
	}

	logger, err := newLogger(a.debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.Logger = logger

	cfg, err := loadCLIConfig(v)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.ResultsDir = cfg.ResultsDir

	if err := os.MkdirAll(a.ResultsDir, constants.DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("config loaded", zap.String("file", used))
	}
	logger.Debug("results directory", zap.String("results_dir", a.ResultsDir))
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// container wires the assessment pipeline from the loaded config.
func (a *AppContext) container() (*application.Container, error) {
	cfg, err := a.Config.containerConfig()
	if err != nil {
		return nil, err
	}
	return application.NewContainer(cfg, a.Logger)
}
