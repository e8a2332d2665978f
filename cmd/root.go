package cmd

import (
	"io"

	"github.com/pyneda/apifuzz/lib"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var debugLogging bool
var prettyLogs bool
var logCloser io.Closer

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apifuzz",
	Short: "Black-box fuzzer for HTTP APIs described by OpenAPI documents",
	Long: `apifuzz generates requests for every operation of an OpenAPI document,
sends them to a running server and records every response whose status code
the document does not declare. Recorded seeds are replayed first on later
runs so fixed bugs stay fixed.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/apifuzz/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Use debug level logging")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", true, "Use pretty logging instead JSON")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		}
		logCloser = lib.ZeroConsoleAndFileLog(viper.GetString("logging.file.path"), prettyLogs)
		lib.SetLogLevel(debugLogging)
		if cfgFile != "" {
			log.Debug().Str("path", viper.ConfigFileUsed()).Msg("Using config file")
		}
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	}
}
