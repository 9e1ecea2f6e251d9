package commands

import (
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/addertuner/internal/api"
	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/lifecycle"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/player"
)

var playCmd = &cobra.Command{
	Use:   "play [PATH]",
	Short: "Serve a playback session",
	Long: `Decode an ADDER event stream (.adder) and reconstruct raster frames from it.

The fast policy writes every event straight into the display; the accurate
policy holds frames back until every row band has information. Transport is
controlled with POST /api/player/{play,pause,stop,step-back}.`,
	Example: `  # Play a stream
  addertuner play out.adder

  # Switch to the accurate policy while running
  curl -X PUT localhost:8080/api/player/settings -d '{"policy":"accurate"}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine := player.NewEngine(lifecycle.NewController(lifecycle.PlaybackBuilder{}), nil, cfg.Player)

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	return serve(configMgr, cfg, session{
		name:   "play",
		cycler: engine,
		option: api.WithPlayer(engine),
		open:   engine.Open,
		reload: func(c *config.Config) {
			if err := engine.Apply(c.Player); err != nil {
				logger.WithComponent("cli").Warn().Err(err).Msg("Ignoring player settings")
			}
		},
	}, path)
}
