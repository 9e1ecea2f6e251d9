package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "addertuner",
		Short: "addertuner - live ADDER transcoder tuning and playback",
		Long: `addertuner converts framed video and event-camera recordings into ADDER
address-event streams and plays encoded streams back as raster frames.

Features:
  • Live transcoder parameter tuning without restarting the source
  • Automatic rebuild when a parameter changes the source's geometry
  • Playback with fast and accurate reconstruction policies
  • MJPEG display stream with a statistics overlay
  • REST API and websocket statistics feed
  • Persistent configuration with live reload`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(viper.GetString("log_level"), viper.GetBool("log_pretty"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/addertuner/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the configuration and lets flags given on the command
// line win over the file
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}
	cfg := configMgr.Get()

	if port := viper.GetInt("server_port"); port > 0 {
		cfg.ServerPort = port
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if viper.GetBool("log_pretty") {
		cfg.LogPretty = true
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}
