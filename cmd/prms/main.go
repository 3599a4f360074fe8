package main

import (
	"fmt"
	"os"

	"github.com/franz/prms-console/internal/gateway"
	"github.com/franz/prms-console/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "prms",
		Short: "PRMS console - reconcile master data, split ratios and unmatched invoices",
		Long: `prms is the operator console for the Pharmacy Revenue Management backend.

It detects duplicate (pharmacy, product) rows in the master catalog, edits
per-doctor split ratios for them, maps unmatched invoice pharmacies to master
pharmacies, and keeps the analytics views coherent after every change.
All computation happens on the backend; the console only orchestrates.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
			if viper.GetBool("no_color") {
				util.SetColors(false)
			}
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/prms/config.yaml)")
	rootCmd.PersistentFlags().String("api-url", util.DefaultBaseURL, "backend base URL")
	rootCmd.PersistentFlags().String("db", defaultDBPath, "key-value state file holding the login token")
	rootCmd.PersistentFlags().String("events-dir", "", "write a JSONL audit trail of mutations to this directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable coloured output")

	// Bind flags to viper
	viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("events_dir", rootCmd.PersistentFlags().Lookup("events-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	gateway.UserAgent = "prms-console/" + Version
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		if dir, err := expandPath(defaultConfigDir); err == nil {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match, e.g. PRMS_API_BASE_URL
	viper.SetEnvPrefix("PRMS")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if util.IsKind(err, util.KindAuth) {
			fmt.Fprintln(os.Stderr, "Run 'prms login' to sign in again.")
		}
		os.Exit(1)
	}
}
