package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "codesmith",
	Short: "codesmith runs an LLM coding agent against a local workspace",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
	SilenceUsage: true,
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initConfig(rootCmd *cobra.Command, configPath string) error {
	viper.SetEnvPrefix("codesmith")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.codesmith")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/codesmith")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file, flags and environment only
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	var logWriter io.Writer
	if config.LogFormat == "json" {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Bool("with-caller", false, "Log caller")
	pf.String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also write logs to this file (rotated)")
	pf.String("config", "", "Path to config file (default ./config.yaml or ~/.codesmith/config.yaml)")
	pf.Bool("verbose", false, "Verbose output")

	pf.String("workspace", ".", "Workspace root the tools operate in")
	pf.String("app-id", "", "Application id passed to the system prompt and file store")
	pf.String("provider", "", "Model provider (claude, openai, anyscale, fireworks)")
	pf.String("model", "", "Model name")
	pf.String("anthropic-api-key", "", "Anthropic API key")
	pf.String("openai-api-key", "", "OpenAI API key")
	pf.String("api-key", "", "API key for the selected provider")
	pf.StringSlice("allow", nil, "Only let tools touch paths matching these globs")
	pf.StringSlice("deny", nil, "Gitignore-style patterns tools may not touch")
	pf.Bool("strict-server-tools", false, "Fail when a provider tool call has no result in the same message")
	pf.Int("max-turns", 0, "Maximum model calls per request (default 25)")
	pf.Int("max-tokens", 0, "Maximum output tokens per model call")
	pf.Bool("dry-run", false, "Do not execute tools, return synthetic results")
	pf.Bool("no-verify", false, "Skip the verification summary")
	pf.Bool("no-pacing", false, "Emit events without presentation delays")
	pf.Bool("web-search", false, "Offer the provider web search tool (claude only)")
	pf.Bool("images", false, "Offer the generate_image tool (needs an OpenAI key)")
	pf.StringSlice("disable-tool", nil, "Do not offer these tools to the model")
	pf.String("sql-db", "", "SQLite database exposed through the sql_query tool")
	pf.String("file-store-db", "", "Mirror workspace writes into this SQLite database, keyed by --app-id")
	pf.String("system-prompt", "", "File holding a system prompt template")
	pf.String("transcript-db", "", "Record transcripts in this SQLite database")
	pf.String("transcript-dir", "", "Record transcripts as YAML files in this directory")
	pf.String("debug-tap", "", "Write raw provider traffic to this directory")
	pf.Bool("show-tool-inputs", false, "Print tool inputs in the event stream")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" && len(os.Args) > idx+1 {
			configFile = os.Args[idx+1]
		}
	}

	if err := initConfig(rootCmd, configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(newRunCommand(), newChatCommand(), newTranscriptCommand(), newToolsCommand())
}
