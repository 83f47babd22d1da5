package main

import (
	"fmt"
	"os"
	"time"

	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/geo"
	"github.com/doggo-app/locshare/internal/position"
	"github.com/doggo-app/locshare/pkg/core"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configDir string

	// Position flags shared by walk and pet
	atFlag    string
	trackFlag string
	loopTrack bool
	outFlag   string
	noLocFlag bool

	// walk
	actorFlag string

	// snapshot
	formatFlag  string
	historyFlag string
	limitFlag   int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "locshare",
	Short: "Live location sharing between dog walkers and dog petters",
	Long: `locshare shares live locations through a keyed store.

A walker publishes its position under its own key every second and removes
it on exit. A petter watches every key and redraws the markers on each change.
The store is served in-process or by "locshare serve" for remote clients.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(configDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownLogging()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the keyed store over WebSocket and HTTP",
	Long: `Serves the configured storage backend to remote walkers and petters.

Routes:
  /ws                WebSocket store protocol
  /healthcheck       liveness and connected client count
  /api/v1/locations  current locations as GeoJSON
  /api/v1/history    recorded track of one key (sqlite and postgres only)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Publish this device's location until interrupted",
	Long: `Publishes the local position under <childPrefix><actor id> and keeps the
map surface centered on it. The entry is deleted on exit.

Example:
  locshare walk --track ./morning-walk.json --loop`,
	Args: cobra.NoArgs,
	RunE: runWalk,
}

var petCmd = &cobra.Command{
	Use:   "pet",
	Short: "Show every walker on the map surface until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runPet,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch the current locations, or one key's history, from a store server",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory containing "+config.FileName)

	for _, cmd := range []*cobra.Command{walkCmd, petCmd} {
		cmd.Flags().StringVar(&atFlag, "at", "", `fixed device position as "lat,lon"`)
		cmd.Flags().StringVar(&trackFlag, "track", "", "JSON track file of [lat, lon] pairs to replay as the device position")
		cmd.Flags().BoolVar(&loopTrack, "loop", false, "restart the track when it ends")
		cmd.Flags().StringVarP(&outFlag, "output", "o", "", "GeoJSON map surface file (default presenter.outputPath)")
		cmd.Flags().BoolVar(&noLocFlag, "no-location", false, "start without location permission (SIGUSR1 toggles it)")
	}
	walkCmd.Flags().StringVar(&actorFlag, "actor", "", "actor id (default: read or create identity.file)")

	snapshotCmd.Flags().StringVar(&formatFlag, "format", "geojson", "output format: geojson or json")
	snapshotCmd.Flags().StringVar(&historyFlag, "history", "", "fetch the recorded track of this key instead")
	snapshotCmd.Flags().IntVar(&limitFlag, "limit", 0, "maximum fixes of history to fetch (0 = server default)")
	snapshotCmd.Flags().StringVarP(&outFlag, "output", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(serveCmd, walkCmd, petCmd, snapshotCmd, versionCmd)
}

// positionSource builds the device position source from the --at and
// --track flags. ok is false when neither is set.
func positionSource(at, track string, loop bool, step time.Duration) (src position.Source, ok bool, err error) {
	switch {
	case track != "":
		r, err := position.LoadReplay(track, step)
		if err != nil {
			return nil, false, err
		}
		r.Loop = loop
		return r, true, nil
	case at != "":
		lat, lon, err := geo.ParseLatLon(at)
		if err != nil {
			return nil, false, fmt.Errorf("invalid --at: %w", err)
		}
		return position.NewStatic(core.Position{Latitude: lat, Longitude: lon}), true, nil
	default:
		return position.Unavailable(), false, nil
	}
}

func locationRequest() position.Request {
	cfg := config.GetPublisherConfig()
	req := position.DefaultRequest()
	if cfg.Interval > 0 {
		req.Interval = cfg.Interval
	}
	if cfg.FastestInterval > 0 {
		req.FastestInterval = cfg.FastestInterval
	}
	return req
}

func surfacePath() string {
	if outFlag != "" {
		return outFlag
	}
	return config.GetPresenterConfig().OutputPath
}
