package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/doggo-app/locshare/internal/api"
	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/geo"
	"github.com/doggo-app/locshare/internal/presenter"
	"github.com/doggo-app/locshare/internal/surface"
	"github.com/doggo-app/locshare/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spf13/cobra"
)

const snapshotTimeout = 30 * time.Second

func runSnapshot(cmd *cobra.Command, _ []string) error {
	if formatFlag != "geojson" && formatFlag != "json" {
		return fmt.Errorf("unknown format %q", formatFlag)
	}

	serverCfg := config.GetServerConfig()
	client := api.New(serverCfg.URL, serverCfg.Secret)
	if err := client.Healthcheck(); err != nil {
		return fmt.Errorf("store server is offline: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), snapshotTimeout)
	defer cancel()

	var out io.Writer = cmd.OutOrStdout()
	if outFlag != "" {
		if historyFlag == "" && formatFlag == "geojson" {
			return snapshotToSurface(ctx, client, outFlag)
		}
		f, err := os.Create(outFlag)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if historyFlag != "" {
		track, err := client.History(ctx, historyFlag, limitFlag)
		if err != nil {
			return err
		}
		return writeHistory(out, historyFlag, track, formatFlag)
	}

	records, err := client.Locations(ctx)
	if err != nil {
		return err
	}
	return writeLocations(out, records, formatFlag)
}

// snapshotToSurface draws the current locations the same way a petter does.
func snapshotToSurface(ctx context.Context, client *api.Client, path string) error {
	records, err := client.Locations(ctx)
	if err != nil {
		return err
	}
	s := surface.NewGeoJSON(path)
	presenter.New(s, 0, nil).Render(records)
	return s.Flush()
}

func writeLocations(w io.Writer, records []core.LocationRecord, format string) error {
	if format == "json" {
		return encode(w, records)
	}
	s := surface.NewGeoJSON("")
	for _, rec := range records {
		s.AddMarker(presenter.MarkerFor(rec))
	}
	return encode(w, s.FeatureCollection())
}

func writeHistory(w io.Writer, key string, track []core.Position, format string) error {
	if format == "json" {
		return encode(w, track)
	}
	return encode(w, geom.GeoJSONFeature{
		ID:         key,
		Geometry:   geo.TrackLineString(track).AsGeometry(),
		Properties: map[string]any{"key": key, "fixes": len(track)},
	})
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
