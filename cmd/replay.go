package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pyneda/apifuzz/internal/config"
	"github.com/pyneda/apifuzz/pkg/http_utils"
	"github.com/pyneda/apifuzz/pkg/report"
)

var replayURL string

type replayResult struct {
	Finding    *report.Finding
	BaseURL    string
	Status     int
	Reproduced bool
}

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <finding.json>...",
	Short: "Send stored findings again and report whether they still reproduce",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Replaying needs neither a document nor a target url, so validation
		// errors about them are expected here.
		settings, _ := config.Current()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		failed := 0
		for _, path := range args {
			finding, err := report.Load(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Could not load finding")
				failed++
				continue
			}
			result, err := replayFinding(ctx, finding, replayURL, settings)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Could not replay finding")
				failed++
				continue
			}
			printReplay(path, result)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d findings could not be replayed", failed, len(args))
		}
		return nil
	},
}

// replayFinding sends the request stored in f. An empty baseURL replays
// against the server the finding was recorded on.
func replayFinding(ctx context.Context, f *report.Finding, baseURL string, settings config.Settings) (replayResult, error) {
	if baseURL == "" {
		baseURL = f.BaseURL()
	}
	transport, err := http_utils.NewTransport(baseURL, settings.Transport)
	if err != nil {
		return replayResult{}, err
	}
	defer transport.Close()

	timeout := settings.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	resp, err := transport.Send(ctx, f.Request(), timeout)
	if err != nil {
		return replayResult{}, err
	}
	return replayResult{
		Finding:    f,
		BaseURL:    transport.BaseURL(),
		Status:     resp.StatusCode,
		Reproduced: resp.StatusCode == f.Status,
	}, nil
}

func printReplay(path string, r replayResult) {
	label := color.New(color.FgGreen).Sprint("fixed")
	if r.Reproduced {
		label = color.New(color.FgRed, color.Bold).Sprint("reproduced")
	}
	fmt.Fprintf(os.Stdout, "%s %s: %s (recorded %d, now %d)\n", label, path, r.Finding.Operation, r.Finding.Status, r.Status)
	fmt.Fprintf(os.Stdout, "  %s\n", r.Finding.Request().Curl(r.BaseURL))
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayURL, "url", "u", "", "Replay against this base URL instead of the recorded one")
}
