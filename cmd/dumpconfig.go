package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dumpconfigPath string

// dumpconfigCmd represents the dumpconfig command
var dumpconfigCmd = &cobra.Command{
	Use:   "dumpconfig",
	Short: "Dumps default configuration file",
	Long:  `Writes the current configuration, defaults included, to a yaml file. Existing files are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.SafeWriteConfigAs(dumpconfigPath); err != nil {
			log.Error().Err(err).Str("path", dumpconfigPath).Msg("Could not write config file")
			return err
		}
		log.Info().Str("path", dumpconfigPath).Msg("Config file written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpconfigCmd)
	dumpconfigCmd.Flags().StringVarP(&dumpconfigPath, "output", "o", "config.yaml", "Where to write the configuration")
}
