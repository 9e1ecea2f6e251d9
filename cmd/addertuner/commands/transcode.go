package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/addertuner/internal/api"
	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/lifecycle"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/transcode"
)

var imageFPS float64

var transcodeCmd = &cobra.Command{
	Use:   "transcode [PATH]",
	Short: "Serve a live transcode session",
	Long: `Transcode a framed video or an event-camera recording into ADDER events and
show the reconstructed display while the parameters are tuned.

Parameters come from the config file, PUT /api/params, or edits to the config
file while running. Changes to scale, reference time or color rebuild the
source at the current frame; the rest apply in place.`,
	Example: `  # Start with a video
  addertuner transcode clip.mp4

  # Start empty and select a source later via POST /api/source
  addertuner transcode --port 9090

  # Image sequence at 60 frames per second
  addertuner transcode ./frames --image-fps 60`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTranscode,
}

func init() {
	rootCmd.AddCommand(transcodeCmd)
	transcodeCmd.Flags().Float64Var(&imageFPS, "image-fps", 30, "frame rate assumed for image sequences")
}

func runTranscode(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	builder := lifecycle.TranscodeBuilder{Options: source.Options{ImageFPS: imageFPS}}
	loop := transcode.NewLoop(lifecycle.NewController(builder), nil, cfg.Transcoder)

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	return serve(configMgr, cfg, session{
		name:   "transcode",
		cycler: loop,
		option: api.WithTranscoder(loop),
		open: func(ctx context.Context, path string) error {
			return loop.RequestRebuild(ctx, path, 0)
		},
		reload: func(c *config.Config) {
			loop.NotifyConfigurationChanged(c.Transcoder)
		},
	}, path)
}
