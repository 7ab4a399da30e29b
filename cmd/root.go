/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vulcanize/mev-commit-indexer/pkg/dblock"
)

var (
	cfgFile                string
	maxWaitSecondsShutdown time.Duration = time.Duration(5) * time.Second
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mev-commit-indexer",
	Short: "This application keeps a local DuckDB copy of the mev-commit preconfirmation events.",
	Long: `This is an application that follows the preconfirmation commitment events of the mev-commit chain,
together with the L1 transactions they settle on, and stores them in a local DuckDB file.
The same file can be queried through a read-only HTTP service.`,
	PersistentPreRun: initFuncs,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// Prerun for Cobra
func initFuncs(cmd *cobra.Command, args []string) {
	logFormat()
	logFile()
	if err := logLevel(); err != nil {
		log.WithField("err", err).Error("Could not set log level")
	}
}

// Set the log level for the application
func logLevel() error {
	viper.BindEnv("log.level", "LOGRUS_LEVEL")
	lvl, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if lvl > log.InfoLevel {
		log.SetReportCaller(true)
	}
	log.Info("Log level set to ", lvl.String())
	return nil
}

// Create a log file
func logFile() {
	viper.BindEnv("log.file", "LOGRUS_FILE")
	logfile := viper.GetString("log.file")
	if logfile != "" {
		file, err := os.OpenFile(logfile,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.Infof("Directing output to %s", logfile)
			mw := io.MultiWriter(os.Stdout, file)
			logrus.SetOutput(mw)
		} else {
			log.SetOutput(os.Stdout)
			log.Info("Failed to log to file, using default stdout")
		}
	} else {
		log.SetOutput(os.Stdout)
	}
}

func logFormat() {
	logFormat := viper.GetString("log.format")

	if logFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})

	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Optional Flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mev-commit-indexer.yaml)")
	rootCmd.PersistentFlags().String("log.level", log.InfoLevel.String(), "log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().String("log.file", "mev-commit-indexer.log", "file path for logging")
	rootCmd.PersistentFlags().String("log.format", "json", "json or text")

	//// Store Specific
	rootCmd.PersistentFlags().String("store.path", "/app/db/data/mev_commit.duckdb", "Path of the DuckDB file")
	rootCmd.PersistentFlags().String("store.lockfile", dblock.DefaultLockfilePath, "Path of the lock file shared by every process using the store")

	// Bind Flags with Viper
	// Optional
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log.level"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log.file"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log.format"))

	//// Store Flags
	viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store.path"))
	viper.BindPFlag("store.lockfile", rootCmd.PersistentFlags().Lookup("store.lockfile"))
	viper.BindEnv("store.path", "DATABASE_URL")
	viper.BindEnv("store.lockfile", "LOCKFILE_PATH")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".mev-commit-indexer" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mev-commit-indexer")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
