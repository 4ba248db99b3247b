package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/table-extractor/cmd/table-extractor/ui"
	"github.com/spherical/table-extractor/internal/app"
	"github.com/spherical/table-extractor/internal/config"
	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/export"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/ingest"
	"github.com/spherical/table-extractor/internal/observability"
	"github.com/spherical/table-extractor/internal/stages"
)

var (
	outputPath string
	xlsxPath   string
	workers    int
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Extract tables and seals from an image or PDF",
	Long: `Runs the extraction pipeline locally on one document and prints the same
JSON envelope the HTTP API returns.

Examples:
  table-extractor process invoice.pdf
  table-extractor process -o result.json --xlsx tables.xlsx scan.png`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the JSON envelope to a file instead of stdout")
	processCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also export the cells to a spreadsheet")
	processCmd.Flags().IntVarP(&workers, "workers", "w", 0, "page worker count (default from config)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Pipeline.MaxWorkers = workers
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "table-extractor-cli",
	})

	service, err := stages.NewService(cfg, logger)
	if err != nil {
		return err
	}
	application := app.New(service, ingest.NewValidator(cfg.Upload.MaxBytes), cfg.Pipeline.ScratchDir, logger)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventCh := make(chan domain.StreamEvent, 256)
	resultCh := make(chan domain.PipelineResult, 1)
	go func() {
		res := application.Handle(ctx, ingest.Upload{Filename: info.Name(), Size: info.Size(), Body: f}, eventCh)
		close(eventCh)
		resultCh <- res
	}()

	startTime := time.Now()
	renderProgress(eventCh)
	res := <-resultCh

	if err := writeEnvelope(cmd, res); err != nil {
		return err
	}

	switch res.Outcome {
	case domain.OutcomeSuccess, domain.OutcomeNoTableLocated:
		ui.Success("%s: %d cells in %v", res.Message, len(res.Tables), time.Since(startTime).Round(time.Millisecond))
		reportSeal(res.Seal)
	case domain.OutcomeConversionFailed:
		ui.Error("%s (code %d)", res.Message, res.Code)
		reportSeal(res.Seal)
	default:
		ui.Error("%s (code %d)", res.Message, res.Code)
	}

	if xlsxPath != "" && len(res.Tables) > 0 {
		if err := export.SaveXLSX(xlsxPath, res.Tables); err != nil {
			return err
		}
		ui.Success("Spreadsheet written to %s", xlsxPath)
	}

	if res.Outcome != domain.OutcomeSuccess && res.Outcome != domain.OutcomeNoTableLocated {
		return fmt.Errorf("extraction failed with code %d", res.Code)
	}
	return nil
}

// renderProgress shows a spinner until the page count is known, then a page
// progress bar. It returns when the event channel is closed.
func renderProgress(eventCh <-chan domain.StreamEvent) {
	spin := ui.NewSpinner("Preparing document...")
	spin.Start()
	spinning := true
	var bar *ui.ProgressBar

	stopSpinner := func() {
		if spinning {
			spin.Stop()
			spinning = false
		}
	}

	for event := range eventCh {
		switch event.Type {
		case domain.EventStart:
			if spinning {
				spin.UpdateMessage(event.Payload)
			}
		case domain.EventPagesReady:
			stopSpinner()
			bar = ui.NewProgressBar(event.Total, "Extracting")
		case domain.EventPageComplete:
			if bar != nil {
				bar.Add()
			}
		case domain.EventError:
			stopSpinner()
			if event.PageNumber > 0 {
				ui.Warning("page %d: %s", event.PageNumber, event.Payload)
			} else {
				ui.Warning("%s", event.Payload)
			}
		case domain.EventComplete:
			if bar != nil {
				bar.Finish()
			}
		}
	}
	stopSpinner()
}

func writeEnvelope(cmd *cobra.Command, res domain.PipelineResult) error {
	data, err := json.MarshalIndent(extract.NewEnvelope(res), "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if outputPath == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}
	ui.Success("Result written to %s", outputPath)
	return nil
}

func reportSeal(seal domain.SealInfo) {
	switch seal.State {
	case domain.SealStateStamp:
		ui.Success("Seal detected")
	case domain.SealStateError:
		ui.Warning("Seal detection: %s", seal.Message)
	default:
		ui.Info("%s", domain.NoStampsMessage)
	}
}
