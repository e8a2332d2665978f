package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pyneda/apifuzz/internal/config"
	"github.com/pyneda/apifuzz/lib"
	"github.com/pyneda/apifuzz/pkg/api/openapi"
	"github.com/pyneda/apifuzz/pkg/corpus"
	"github.com/pyneda/apifuzz/pkg/fuzz"
	"github.com/pyneda/apifuzz/pkg/http_utils"
	"github.com/pyneda/apifuzz/pkg/report"
	"github.com/pyneda/apifuzz/pkg/scan/control"
	"github.com/pyneda/apifuzz/pkg/scan/orchestrator"
)

var fuzzHeaders []string
var fuzzFailOnFindings bool

var errFindings = errors.New("findings were recorded")

// fuzzCmd represents the fuzz command
var fuzzCmd = &cobra.Command{
	Use:   "fuzz",
	Short: "Fuzz every operation of an OpenAPI document against a running server",
	Long: `Loads the OpenAPI document, replays the regression corpus and then generates
test cases for every operation until its budget is spent or it saturates.
Responses with undeclared status codes are stored as findings.`,
	Example: `apifuzz fuzz --spec openapi.yaml --url http://localhost:8080
apifuzz fuzz --spec openapi.yaml -u http://localhost:8080 -i 404 -H "Authorization: Bearer token"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Current()
		if err != nil {
			return err
		}
		headers, err := parseHeaders(fuzzHeaders)
		if err != nil {
			return err
		}
		if settings.Headers == nil {
			settings.Headers = make(map[string]string)
		}
		for name, value := range headers {
			settings.Headers[name] = value
		}
		format, err := lib.ParseFormatType(settings.Format)
		if err != nil {
			return err
		}

		summary, err := runFuzz(cmd.Context(), settings)
		if err != nil {
			return err
		}

		out, err := summary.Render(format)
		if err != nil {
			return err
		}
		fmt.Println(out)
		printFindingsLine(summary)

		if fuzzFailOnFindings && summary.TotalFindings() > 0 {
			return errFindings
		}
		return nil
	},
}

func runFuzz(ctx context.Context, settings config.Settings) (*report.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ops, err := openapi.LoadOperations(ctx, settings.SpecPath)
	if err != nil {
		return nil, err
	}
	log.Info().Int("operations", len(ops)).Str("spec", settings.SpecPath).Msg("Loaded OpenAPI document")

	regressions, err := corpus.Open(settings.CorpusFile)
	if err != nil {
		return nil, err
	}
	defer regressions.Close()

	runID := uuid.NewString()
	findings, err := report.NewFindingStore(settings.FindingsDir, regressions, runID)
	if err != nil {
		return nil, err
	}

	transport, err := http_utils.NewTransport(settings.BaseURL, settings.Transport)
	if err != nil {
		return nil, err
	}
	defer transport.Close()

	rc := control.New(ctx)
	defer rc.Close()
	unwatch := rc.StopOnSignal(os.Interrupt, syscall.SIGTERM)
	defer unwatch()
	unwatchPause := watchPauseSignals(rc)
	defer unwatchPause()

	o := orchestrator.New(orchestrator.Config{
		BaseURL:             transport.BaseURL(),
		Budget:              settings.Budget,
		SaturationWindow:    settings.SaturationWindow,
		Concurrency:         settings.Concurrency,
		MaxTransportRetries: settings.MaxRetries,
		RequestTimeout:      settings.RequestTimeout,
		RetryBackoff:        settings.RetryBackoff,
		RunID:               runID,
		StatsDir:            settings.StatsDir,
		Generator:           fuzz.NewGenerator(settings.Generator),
		Builder:             openapi.NewRequestBuilder().WithExtraHeaders(settings.Headers),
		Classifier:          fuzz.NewClassifier(settings.IgnoredStatusCodes, settings.StrictServerErrors),
		Transport:           transport,
		Findings:            findings,
		Corpus:              regressions,
		Timings:             report.NewTimings(),
		Control:             rc,
	})
	return o.Run(ctx, ops)
}

// parseHeaders turns "Name: value" pairs into a header map.
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func printFindingsLine(summary *report.Summary) {
	total := summary.TotalFindings()
	if total == 0 {
		color.New(color.FgGreen).Fprintf(os.Stderr, "No findings across %d test cases\n", summary.TotalTestCases())
		return
	}
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "%d findings (%d new) across %d test cases, stored in %s\n",
		total, summary.NewFindings(), summary.TotalTestCases(), summary.OutputDir)
}

func init() {
	rootCmd.AddCommand(fuzzCmd)

	fuzzCmd.Flags().String("spec", "", "OpenAPI document to fuzz (path or URL)")
	fuzzCmd.Flags().StringP("url", "u", "", "Base URL of the server under test")
	fuzzCmd.Flags().IntSliceP("ignore-status-code", "i", nil, "Status codes never reported as findings")
	fuzzCmd.Flags().StringArrayVarP(&fuzzHeaders, "header", "H", nil, "Extra header sent with every request, as \"Name: value\"")
	fuzzCmd.Flags().Int("budget", 256, "Maximum number of generated test cases per operation")
	fuzzCmd.Flags().Int("saturation-window", 64, "Stop an operation after this many consecutive expected responses (0 disables)")
	fuzzCmd.Flags().Int("concurrency", 4, "Number of operations fuzzed at once")
	fuzzCmd.Flags().String("out", "results", "Directory where findings are stored")
	fuzzCmd.Flags().String("corpus", "results/regressions.jsonl", "Regression corpus file")
	fuzzCmd.Flags().String("stats", "", "Directory where per operation response time statistics are written")
	fuzzCmd.Flags().Bool("strict-server-errors", false, "Report 5xx responses even when the document declares them")
	fuzzCmd.Flags().Int("timeout", 10, "Request timeout in seconds")
	fuzzCmd.Flags().Int("retries", 3, "Retries for requests that got no response")
	fuzzCmd.Flags().Float64("rate-limit", 0, "Maximum requests per second (0 is unlimited)")
	fuzzCmd.Flags().String("proxy", "", "Proxy URL for all requests")
	fuzzCmd.Flags().String("protocol", "", "HTTP protocol to use: http1, http2 or http3")
	fuzzCmd.Flags().String("format", "table", "Summary output format: table, pretty, text, json or yaml")
	fuzzCmd.Flags().BoolVar(&fuzzFailOnFindings, "fail-on-findings", false, "Exit with an error when any finding was recorded")

	bindings := map[string]string{
		"fuzz.spec":                 "spec",
		"fuzz.url":                  "url",
		"fuzz.ignored_status_codes": "ignore-status-code",
		"fuzz.budget":               "budget",
		"fuzz.saturation_window":    "saturation-window",
		"fuzz.concurrency":          "concurrency",
		"fuzz.strict_server_errors": "strict-server-errors",
		"output.findings_dir":       "out",
		"output.corpus_file":        "corpus",
		"output.stats_dir":          "stats",
		"output.format":             "format",
		"transport.timeout":         "timeout",
		"transport.max_retries":     "retries",
		"transport.rate_limit":      "rate-limit",
		"transport.proxy":           "proxy",
		"transport.protocol":        "protocol",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, fuzzCmd.Flags().Lookup(flag)); err != nil {
			log.Panic().Err(err).Str("flag", flag).Msg("Could not bind flag")
		}
	}
}
