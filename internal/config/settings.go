package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pyneda/apifuzz/pkg/fuzz"
	"github.com/pyneda/apifuzz/pkg/http_utils"
)

// Settings is the resolved configuration of a fuzzing run.
type Settings struct {
	SpecPath           string
	BaseURL            string
	Budget             int
	SaturationWindow   int
	Concurrency        int
	StrictServerErrors bool
	IgnoredStatusCodes []int
	Headers            map[string]string
	Generator          fuzz.Options

	Transport      http_utils.TransportOptions
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration

	FindingsDir string
	CorpusFile  string
	StatsDir    string
	Format      string
}

// Current reads the settings from viper.
func Current() (Settings, error) {
	s := Settings{
		SpecPath:           viper.GetString("fuzz.spec"),
		BaseURL:            viper.GetString("fuzz.url"),
		Budget:             viper.GetInt("fuzz.budget"),
		SaturationWindow:   viper.GetInt("fuzz.saturation_window"),
		Concurrency:        viper.GetInt("fuzz.concurrency"),
		StrictServerErrors: viper.GetBool("fuzz.strict_server_errors"),
		IgnoredStatusCodes: viper.GetIntSlice("fuzz.ignored_status_codes"),
		Headers:            viper.GetStringMapString("fuzz.headers"),
		Generator: fuzz.Options{
			MaxDepth:        viper.GetInt("fuzz.max_depth"),
			MaxArrayLength:  viper.GetInt("fuzz.max_array_length"),
			MaxStringLength: viper.GetInt("fuzz.max_string_length"),
			Bias:            fuzz.DefaultBias,
		},
		Transport: http_utils.TransportOptions{
			Protocol:        viper.GetString("transport.protocol"),
			Insecure:        viper.GetBool("transport.insecure"),
			Proxy:           viper.GetString("transport.proxy"),
			RateLimit:       viper.GetFloat64("transport.rate_limit"),
			AdaptiveRate:    viper.GetBool("transport.adaptive_rate"),
			MaxResponseBody: viper.GetInt64("transport.max_response_body"),
		},
		RequestTimeout: time.Duration(viper.GetInt("transport.timeout")) * time.Second,
		MaxRetries:     viper.GetInt("transport.max_retries"),
		RetryBackoff:   time.Duration(viper.GetInt("transport.retry_backoff")) * time.Millisecond,
		FindingsDir:    viper.GetString("output.findings_dir"),
		CorpusFile:     viper.GetString("output.corpus_file"),
		StatsDir:       viper.GetString("output.stats_dir"),
		Format:         viper.GetString("output.format"),
	}
	if err := viper.UnmarshalKey("fuzz.bias", &s.Generator.Bias); err != nil {
		return s, fmt.Errorf("reading fuzz.bias: %w", err)
	}
	return s, s.Validate()
}

func (s Settings) Validate() error {
	var errs []error
	if s.SpecPath == "" {
		errs = append(errs, errors.New("an OpenAPI document is required (--spec)"))
	}
	if s.BaseURL == "" {
		errs = append(errs, errors.New("a target url is required (--url)"))
	}
	if s.Budget <= 0 {
		errs = append(errs, fmt.Errorf("budget must be positive, got %d", s.Budget))
	}
	if s.SaturationWindow < 0 {
		errs = append(errs, fmt.Errorf("saturation window must not be negative, got %d", s.SaturationWindow))
	}
	if s.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", s.Concurrency))
	}
	if s.RequestTimeout <= 0 {
		errs = append(errs, errors.New("transport timeout must be positive"))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", s.MaxRetries))
	}
	for _, code := range s.IgnoredStatusCodes {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Errorf("ignored status code %d is out of range", code))
		}
	}
	if s.FindingsDir == "" {
		errs = append(errs, errors.New("output.findings_dir must be set"))
	}
	if s.CorpusFile == "" {
		errs = append(errs, errors.New("output.corpus_file must be set"))
	}
	if err := s.Generator.Bias.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// biasDefaults renders bias as the map viper stores under fuzz.bias.
func biasDefaults(bias fuzz.Bias) map[string]any {
	data, _ := json.Marshal(bias)
	out := make(map[string]any)
	_ = json.Unmarshal(data, &out)
	return out
}
