package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/pyneda/apifuzz/pkg/fuzz"
)

// EnvPrefix prefixes environment overrides, e.g. APIFUZZ_FUZZ_BUDGET.
const EnvPrefix = "APIFUZZ"

const DefaultRequestTimeout = 10 * time.Second

func LoadConfig() {
	loadDotEnv(".env")

	viper.SetConfigName("config")        // name of config file (without extension)
	viper.SetConfigType("yaml")          // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath("/etc/apifuzz/") // path to look for the config file in
	viper.AddConfigPath(".")             // optionally look for config in the working directory
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Debug().Msg("Config file not found, using defaults")
		} else {
			// Config file was found but another error was produced
			log.Panic().Err(err).Msg("Fatal error reading config file")
		}
	}
	SetDefaultConfig()
}

// loadDotEnv exports the variables of path into the environment. Variables
// already set win over the file.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Could not load env file")
	}
}

func SetDefaultConfig() {
	defaults := fuzz.DefaultOptions()

	// Fuzz
	viper.SetDefault("fuzz.spec", "")
	viper.SetDefault("fuzz.url", "")
	viper.SetDefault("fuzz.budget", 256)
	viper.SetDefault("fuzz.saturation_window", 64)
	viper.SetDefault("fuzz.concurrency", 4)
	viper.SetDefault("fuzz.max_depth", defaults.MaxDepth)
	viper.SetDefault("fuzz.max_array_length", defaults.MaxArrayLength)
	viper.SetDefault("fuzz.max_string_length", defaults.MaxStringLength)
	viper.SetDefault("fuzz.strict_server_errors", false)
	viper.SetDefault("fuzz.ignored_status_codes", []int{})
	viper.SetDefault("fuzz.headers", map[string]string{})
	viper.SetDefault("fuzz.bias", biasDefaults(defaults.Bias))

	// Transport
	viper.SetDefault("transport.timeout", int(DefaultRequestTimeout.Seconds()))
	viper.SetDefault("transport.max_retries", 3)
	viper.SetDefault("transport.retry_backoff", 250)
	viper.SetDefault("transport.insecure", true)
	viper.SetDefault("transport.proxy", "")
	viper.SetDefault("transport.protocol", "")
	viper.SetDefault("transport.rate_limit", 0)
	viper.SetDefault("transport.adaptive_rate", false)
	viper.SetDefault("transport.max_response_body", 1024*1024)

	// Output
	viper.SetDefault("output.findings_dir", "results")
	viper.SetDefault("output.corpus_file", "results/regressions.jsonl")
	viper.SetDefault("output.stats_dir", "")
	viper.SetDefault("output.format", "table")

	// Logging
	viper.SetDefault("logging.file.path", "apifuzz.log")
}
