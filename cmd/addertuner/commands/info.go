package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/addertuner/internal/codec"
)

var infoFormat string

var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Show an event stream's header",
	Example: `  addertuner info clip.adder
  addertuner info clip.adder --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "text", "output format (text or json)")
}

type streamInfo struct {
	codec.Header
	Events     int64   `json:"events"`
	FrameRate  float64 `json:"frame_rate"`
	FileBytes  int64   `json:"file_bytes"`
	Camera     string  `json:"camera"`
	EventBytes int     `json:"event_bytes"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]
	r, err := codec.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	n, err := r.EventCount()
	if err != nil {
		return err
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}

	h := r.Header()
	info := streamInfo{
		Header:     h,
		Events:     n,
		FrameRate:  h.FrameRate(),
		FileBytes:  st.Size(),
		Camera:     h.SourceCamera.String(),
		EventBytes: codec.EventSize,
	}

	switch infoFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s (use 'text' or 'json')", infoFormat)
	}

	fmt.Printf("File:        %s (%s)\n", path, humanize.Bytes(uint64(st.Size())))
	fmt.Printf("Version:     %d\n", h.Version)
	fmt.Printf("Source:      %s\n", info.Camera)
	fmt.Printf("Geometry:    %dx%dx%d\n", h.Width, h.Height, h.Channels)
	fmt.Printf("Time base:   %s ticks/s, ref %s ticks (%.2f fps)\n",
		humanize.Comma(int64(h.TicksPerSecond)), humanize.Comma(int64(h.RefInterval)), info.FrameRate)
	fmt.Printf("Δt max:      %s ticks\n", humanize.Comma(int64(h.DeltaTMax)))
	fmt.Printf("Events:      %s\n", humanize.Comma(n))
	if pixels := int64(h.Width) * int64(h.Height) * int64(h.Channels); pixels > 0 {
		fmt.Printf("Events/ppc:  %.2f\n", float64(n)/float64(pixels))
	}
	return nil
}
