package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hillview/internal/capture"
	"hillview/internal/config"
	"hillview/internal/queue"
)

var manualPhotoExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
}

func newAddPhotoCommand(ctx *commandContext) *cobra.Command {
	var (
		lat            float64
		lon            float64
		alt            float64
		bearing        float64
		accuracy       float64
		mode           string
		locationSource string
		bearingSource  string
	)

	cmd := &cobra.Command{
		Use:   "add-photo <path>",
		Short: "Add a JPEG to the upload queue manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}
			ext := strings.ToLower(filepath.Ext(info.Name()))
			if _, ok := manualPhotoExtensions[ext]; !ok {
				return fmt.Errorf("unsupported file extension %q", ext)
			}

			data, err := os.ReadFile(absPath)
			if err != nil {
				return fmt.Errorf("read photo: %w", err)
			}

			loc := capture.Location{
				Latitude:      lat,
				Longitude:     lon,
				Accuracy:      accuracy,
				Source:        capture.ParseLocationSource(locationSource),
				BearingSource: bearingSource,
			}
			if cmd.Flags().Changed("alt") {
				loc.Altitude = &alt
			}
			if cmd.Flags().Changed("bearing") {
				loc.Heading = &bearing
			}
			if !loc.Valid() {
				return fmt.Errorf("invalid location: latitude must be in [-90, 90] and longitude in [-180, 180]")
			}

			captureMode, ok := capture.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q", mode)
			}

			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				id := capture.NewIDGenerator().Next()
				item, err := store.NewCapture(cmd.Context(), queue.NewCaptureParams{
					ID:            id,
					PlaceholderID: id,
					ImageData:     data,
					Location:      loc.Normalized(),
					CapturedAt:    time.Now().UnixMilli(),
					Mode:          captureMode,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as %s (%s)\n", filepath.Base(absPath), item.ID, item.Mode)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude in decimal degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude in decimal degrees")
	cmd.Flags().Float64Var(&alt, "alt", 0, "Altitude in meters")
	cmd.Flags().Float64Var(&bearing, "bearing", 0, "Heading in degrees clockwise from true north")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "Horizontal accuracy in meters (0 records unknown)")
	cmd.Flags().StringVar(&mode, "mode", "single", "Capture mode (single, slow, fast)")
	cmd.Flags().StringVar(&locationSource, "location-source", "gps", "Fix source (gps, map)")
	cmd.Flags().StringVar(&bearingSource, "bearing-source", "", "Bearing provenance (compass, gps, map-center)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")

	return cmd
}
