package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/logging"
	"github.com/smazurov/qrgrabber/internal/scan"
	"github.com/smazurov/qrgrabber/internal/tui"
	"github.com/spf13/cobra"
)

// CreateScanCmd creates the scan command.
func CreateScanCmd() *cobra.Command {
	var opts captureOptions
	var plain bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one QR code from the camera and print it",
		Long: `Claims the default barcode scanner, streams its camera until one code is decoded ` +
			`and prints the payload. Shows a status view when stderr is a terminal; q cancels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			logger := logging.GetLogger("scan")

			backend, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer backend.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := scan.NewController(scan.Options{
				Media:       backend,
				Scanners:    backend,
				MaxWidth:    opts.MaxWidth,
				ScanTimeout: opts.ScanTimeout,
				Logger:      logger,
			})
			defer ctrl.Close()

			res, err := ctrl.PrepareDevice(ctx)
			if err != nil {
				return fmt.Errorf("prepare scanner: %w", err)
			}
			logger.Info("Scanner prepared", "resolution", res.String())

			// frames only feed the relay counters shown by the status view
			discard := func(capture.PixelBuffer) error { return nil }
			run := func(ctx context.Context) (scan.Result, error) {
				return ctrl.StartScan(ctx, discard)
			}

			var result scan.Result
			if plain || !isatty.IsTerminal(os.Stderr.Fd()) {
				result, err = run(ctx)
			} else {
				model := tui.NewModel(ctrl, deviceLabel(opts, backend.Name()), res)
				result, err = tui.Run(ctx, model, os.Stderr, run)
			}
			if err != nil {
				if errors.Is(err, scan.ErrScanStopped) || errors.Is(err, context.Canceled) {
					return errors.New("scan cancelled")
				}
				return err
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Label)
			return err
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable the status view")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func deviceLabel(opts captureOptions, backend string) string {
	if opts.Device != "" {
		return fmt.Sprintf("%s (%s)", opts.Device, backend)
	}
	return backend + " default scanner"
}
