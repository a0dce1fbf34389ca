// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejiriaustin/resource-monitor/clients"
	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/logger"
)

const serviceName = "resource-monitor"

var (
	cfgFile  string
	log      *logger.Logger
	vpr      *viper.Viper
	validate = validator.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "resource-monitor",
	Short: "Resource Change Monitor",
	Long: `A CLI tool that polls a set of files and reports when one is resized,
rewritten or deleted.`,
	SilenceUsage: true,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Resource Change Monitor daemon",
	Run:   stopDaemon,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the Resource Change Monitor daemon",
	Run: func(cmd *cobra.Command, args []string) {
		client := clients.NewClient(config.GetConfig())

		if err := client.Health(); err != nil {
			log.Debugw("Health check failed", "error", err)
			fmt.Fprintln(cmd.OutOrStdout(), "Service Status:  Stopped")
			return
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Service Status:  Running")

		stats, err := client.Stats()
		if err != nil {
			log.Errorw("Failed to fetch stats", "error", err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resources:       %d\n", stats.Resources)
		fmt.Fprintf(cmd.OutOrStdout(), "Listeners:       %d\n", stats.Listeners)
		fmt.Fprintf(cmd.OutOrStdout(), "Passes:          %d\n", stats.Passes)
		fmt.Fprintf(cmd.OutOrStdout(), "Events:          %d\n", stats.EventsDispatched)
		fmt.Fprintf(cmd.OutOrStdout(), "Errors:          %d\n", stats.Errors)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration for Resource Change Monitor",
	Long:  `View or modify the configuration for Resource Change Monitor.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}

		if cfg.ConfigPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.ConfigPath)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		vpr.Set(key, value)

		// reject values the daemon would refuse to start with
		if _, err := config.Load(vpr, validate, log); err != nil {
			return err
		}

		if vpr.ConfigFileUsed() == "" {
			if err := vpr.SafeWriteConfigAs("config.yaml"); err != nil {
				return fmt.Errorf("error writing config: %w", err)
			}
		} else if err := vpr.WriteConfig(); err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}

		log.Infow("Config updated", "key", key, "value", value)
		return nil
	},
}

func buildLogger() {
	var err error
	log, err = logger.NewLogger(logger.Config{
		LogLevel:    "info",
		DevMode:     true,
		ServiceName: serviceName,
	})
	if err != nil {
		panic(fmt.Errorf("failed to create logger: %v", err))
	}
}

func loadConfig() {
	vpr = config.NewViper(cfgFile)
	config.InitConfig(vpr, validate, func() *logger.Logger { return log })()
}

// configureLogger rebuilds the logger once the configured level is known.
func configureLogger() {
	cfg := config.GetConfig()
	configured, err := logger.NewLogger(logger.Config{
		LogLevel:    cfg.LogLevel,
		DevMode:     cfg.DevMode,
		ServiceName: serviceName,
	})
	if err != nil {
		log.Errorw("Failed to apply log config", "error", err)
		return
	}
	log = configured
}

func init() {
	cobra.OnInitialize(buildLogger, loadConfig, configureLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}
