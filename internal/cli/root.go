// internal/cli/root.go
package ragask

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/mwiater/ragask/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	loadedFile    string
	currentConfig *appconfig.Config
)

var rootCmd = &cobra.Command{
	Use:   "ragask",
	Short: "ragask answers one question with an LLM, optionally grounded in a directory of Markdown files",
	Long: `ragask builds a prompt, picks a model backend (llama-cpp, openAI, Openshift.ai or ollama),
optionally indexes the Markdown files under --contextDirectory, and prints the model's answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1) Load config (file or defaults)
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		// 2) Materialize the merged configuration (flags > config > defaults).
		cfg, err := appconfig.FromViper(viper.GetViper())
		if err != nil {
			return err
		}
		cfg.ConfigPath = loadedFile
		currentConfig = &cfg

		// 3) Open the run log. Debug mode mirrors every line to stderr.
		var mirrors []io.Writer
		if cfg.Debug {
			mirrors = append(mirrors, cmd.ErrOrStderr())
		}
		if err := logging.Init(cfg.LogFilePath(), mirrors...); err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.LogFilePath(), err)
		}
		logging.Info("ragask %s command=%q config=%q", cmd.Root().Version, cmd.CommandPath(), cfg.ConfigPath)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		progress := startProgress(cmd.ErrOrStderr(), spinnerEnabled(cfg, cmd.ErrOrStderr()))
		defer progress.Stop()
		defer logging.SetConsole(progress)()

		render := answerRenderer(out)
		p := pipeline.New(cfg, out,
			pipeline.WithStatus(progress.Set),
			pipeline.WithRenderer(func(answer string) string {
				progress.Stop()
				return render(answer)
			}),
		)
		if _, err := p.Run(ctx); err != nil {
			progress.Stop()
			_ = logging.Close()
			return err
		}
		return nil
	},
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.ConsoleError(os.Stderr, "Error: "+err.Error(), false)
		os.Exit(1)
	}
}

// SetVersionInfo enables --version with the build metadata injected by main.
func SetVersionInfo(version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

func init() {
	cobra.OnInitialize(initConfig)

	// --config (defaults to config/config.json; a missing file means defaults)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.json", "config file (JSON or YAML)")

	d := appconfig.Default()
	rootCmd.PersistentFlags().StringP("question", "q", d.Question, "question to ask the model")
	rootCmd.PersistentFlags().StringP("contextDirectory", "d", "", "directory of Markdown files used to ground the answer")
	rootCmd.PersistentFlags().StringP("modelType", "m", d.ModelType, "model backend: llama-cpp, openAI, Openshift.ai or ollama")
	rootCmd.PersistentFlags().Float64P("temperature", "t", d.Temperature, "sampling temperature")
	rootCmd.PersistentFlags().String("logFile", d.LogFile, "append-only run log")
	rootCmd.PersistentFlags().Bool("debug", false, "mirror the run log to stderr and disable the spinner")

	// Bind flags to Viper keys (flags override config)
	for _, name := range []string{"question", "contextDirectory", "modelType", "temperature", "logFile", "debug"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded reads the config file, if any, and registers defaults.
func ensureConfigLoaded() error {
	appconfig.SetDefaults(viper.GetViper())
	loadedFile = ""

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// No file: fine, we'll use defaults/flags
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	loadedFile = viper.ConfigFileUsed()
	return nil
}

// getConfig returns the merged configuration for the running command.
func getConfig() *appconfig.Config {
	return currentConfig
}
