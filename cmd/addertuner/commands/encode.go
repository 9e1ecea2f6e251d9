package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/addertuner/internal/codec"
	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/lifecycle"
	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/bryanchriswhite/addertuner/internal/source"
	"github.com/bryanchriswhite/addertuner/internal/transcode"
)

var (
	encodeFrames   uint64
	encodeResumeAt uint32
)

var encodeCmd = &cobra.Command{
	Use:   "encode INPUT OUTPUT",
	Short: "Transcode a source to an event stream file",
	Long: `Run the transcoder headless over INPUT with the configured parameters and
write every emitted event to OUTPUT. The clip is transcoded once, without
looping.`,
	Example: `  # Encode a whole video
  addertuner encode clip.mp4 clip.adder

  # Encode 300 intervals starting at frame 120
  addertuner encode clip.mp4 part.adder --start 120 --frames 300`,
	Args: cobra.ExactArgs(2),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().Uint64Var(&encodeFrames, "frames", 0, "stop after this many intervals (0 = whole clip)")
	encodeCmd.Flags().Uint32Var(&encodeResumeAt, "start", 0, "first input frame")
	encodeCmd.Flags().Float64Var(&imageFPS, "image-fps", 30, "frame rate assumed for image sequences")
}

func runEncode(cmd *cobra.Command, args []string) error {
	input, outPath := args[0], args[1]
	if source.Classify(outPath) != source.KindStream {
		return fmt.Errorf("output must have the %s extension", source.StreamExt)
	}

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("encode")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := lifecycle.TranscodeBuilder{Options: source.Options{ImageFPS: imageFPS}}
	loop := transcode.NewLoop(lifecycle.NewController(builder), nil, cfg.Transcoder)
	loop.SetLooping(false)
	if err := loop.RequestRebuild(ctx, input, encodeResumeAt); err != nil {
		return err
	}
	defer loop.Controller().Close()

	w, err := codec.Create(outPath, streamHeader(loop.Controller().Active(), cfg.Transcoder))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	loop.SetSink(w)

	start := time.Now()
	var intervals uint64
	for !loop.Finished() {
		if ctx.Err() != nil {
			log.Warn().Msg("Interrupted, keeping what was written")
			break
		}
		r := loop.Tick(ctx)
		if r.Frame == nil {
			// source still opening
			time.Sleep(5 * time.Millisecond)
			continue
		}
		intervals++
		if intervals%100 == 0 {
			log.Info().
				Uint64("intervals", intervals).
				Str("events", humanize.Comma(w.Count())).
				Msg("Encoding")
		}
		if encodeFrames > 0 && intervals >= encodeFrames {
			break
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", outPath, err)
	}
	if err := loop.Err(); err != nil {
		return fmt.Errorf("source failed after %d intervals: %w", intervals, err)
	}

	fmt.Printf("Encoded %s intervals, %s events to %s in %s\n",
		humanize.Comma(int64(intervals)),
		humanize.Comma(w.Count()),
		outPath,
		time.Since(start).Round(time.Millisecond))
	return nil
}

// streamHeader describes the bound transcoder source
func streamHeader(a lifecycle.Active, p config.Params) codec.Header {
	src, _ := lifecycle.Transcoder(a)
	camera := codec.SourceFramedU8
	if a.Kind() == lifecycle.KindEventCamera {
		camera = codec.SourceDavisU8
		if p.DavisMode == config.DavisModeRawDVS {
			camera = codec.SourceDVS
		}
	}
	return codec.Header{
		Version:        codec.Version,
		Width:          uint16(src.Width()),
		Height:         uint16(src.Height()),
		Channels:       uint8(src.Channels()),
		TicksPerSecond: src.TicksPerSecond(),
		RefInterval:    src.RefTime(),
		DeltaTMax:      src.DeltaTMax(),
		SourceCamera:   camera,
	}
}
