package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aristath/goalrunner/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "goalrunner",
	Short: "Break an objective into agent tasks and run them in dependency order",
	Long: `goalrunner asks a planner model to decompose an objective into tasks,
then runs designer, coder and context agents over the resulting dependency
graph against a local Ollama server or a command line backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"project config file (default: .goalrunner/config.json)")
	rootCmd.PersistentFlags().String("ollama-url", "", "Ollama base URL")
	rootCmd.PersistentFlags().String("control-model", "", "model for planner, designer and context roles")
	rootCmd.PersistentFlags().String("code-model", "", "model for the coder role")
	rootCmd.PersistentFlags().Int("concurrency", 0, "tasks of one ready batch run at once")

	// Flags win over the environment, which wins over config files
	_ = v.BindPFlag("backend.endpoint", rootCmd.PersistentFlags().Lookup("ollama-url"))
	_ = v.BindPFlag("models.control", rootCmd.PersistentFlags().Lookup("control-model"))
	_ = v.BindPFlag("models.code", rootCmd.PersistentFlags().Lookup("code-model"))
	_ = v.BindPFlag("scheduler.concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	_ = v.BindEnv("backend.endpoint", "OLLAMA_URL")
	_ = v.BindEnv("models.control", "CONTROL_MODEL")
	_ = v.BindEnv("models.code", "CODE_MODEL")
	_ = v.BindEnv("scheduler.concurrency", "GOALRUNNER_CONCURRENCY")

	rootCmd.AddCommand(runCmd, serveCmd)
}

// configPaths returns the global and project config files in effect.
func configPaths() (global, project string, err error) {
	global, project, err = config.DefaultPaths()
	if err != nil {
		return "", "", err
	}
	if cfgFile != "" {
		project = cfgFile
	}
	return global, project, nil
}

// loadConfig layers flag and environment overrides onto the config files.
func loadConfig() (*config.Config, error) {
	global, project, err := configPaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(global, project)
	if err != nil {
		return nil, err
	}

	if s := v.GetString("backend.endpoint"); s != "" {
		cfg.Backend.Endpoint = s
	}
	if s := v.GetString("models.control"); s != "" {
		cfg.Models.Control = s
	}
	if s := v.GetString("models.code"); s != "" {
		cfg.Models.Code = s
	}
	if n := v.GetInt("scheduler.concurrency"); n > 0 {
		cfg.Scheduler.Concurrency = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
