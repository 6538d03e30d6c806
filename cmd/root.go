package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "skillrunner",
	Short: "Autonomous skill-driven task orchestrator",
	Long: `skillrunner discovers SKILL.md manuals, plans an atomic step-by-step
roadmap for a user's task, and drives execution through a ReAct worker loop
with artifact verification, technical critique, and self-healing replanning.

This tool provides:
- Skill discovery and script execution
- Atomic planning with self-healing replan on failure
- Verified, hallucination-resistant step completion
- Structured JSON-lines telemetry with optional durable storage and tracing`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Check for log file flags and make sure the log directory exists
		logFile, _ := cmd.Flags().GetString("log-file")

		// Also check for test.log-file flag (used by test commands)
		if logFile == "" {
			logFile = viper.GetString("test.log-file")
		}

		// Set environment variables for immediate effect when log file is specified
		if logFile != "" {
			os.Setenv("LOG_FILE", logFile)
		}

		if logFile != "" {
			// Create log directory if it doesn't exist
			logDir := filepath.Dir(logFile)
			if err := os.MkdirAll(logDir, 0755); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
				os.Exit(1)
			}

			// REMOVED: Global stdout/stderr redirection
			// This was causing conflicts with individual command logging
			// Individual commands should handle their own logging configuration

			// REMOVED: Global logger initialization
			// This was causing conflicts with individual command logging
			// Individual commands should handle their own logging configuration
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mcp-agent.yaml)")
	rootCmd.PersistentFlags().String("trace-provider", "console", "tracing provider (langfuse, noop; any other value uses noop)")
	rootCmd.PersistentFlags().String("langfuse-host", "https://cloud.langfuse.com", "Langfuse host URL")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Int("max-turns", 50, "maximum conversation turns per agent")
	rootCmd.PersistentFlags().Float64("temperature", 0.2, "LLM temperature")

	// Logging flags
	rootCmd.PersistentFlags().String("log-file", "", "log file path (optional)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Log file flag read as a fallback by PersistentPreRun when --log-file is empty
	rootCmd.PersistentFlags().String("test.log-file", "", "test log file path (used by test commands)")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("trace-provider", rootCmd.PersistentFlags().Lookup("trace-provider"))
	viper.BindPFlag("langfuse-host", rootCmd.PersistentFlags().Lookup("langfuse-host"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("max-turns", rootCmd.PersistentFlags().Lookup("max-turns"))
	viper.BindPFlag("temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("test.log-file", rootCmd.PersistentFlags().Lookup("test.log-file"))

	// runCmd registers itself onto rootCmd from its own init() in run.go.
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Load .env file first (if present) - look in agent_go directory
	if err := godotenv.Load("agent_go/.env"); err == nil {
		// Environment loaded successfully
	} else if err := godotenv.Load(".env"); err == nil {
		// Environment loaded successfully
	} else if err := godotenv.Load("../.env"); err == nil {
		// Environment loaded successfully
	} else {
		fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".mcp-agent" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mcp-agent")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Don't initialize logger globally - let individual commands handle it
	// This allows each command to set its own logging configuration
}
