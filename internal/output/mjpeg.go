package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bryanchriswhite/addertuner/internal/logger"
)

// MJPEGOutput streams the display raster as Motion JPEG over HTTP
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastSize   image.Point
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality < 1 || config.Quality > 100 {
		config.Quality = 80
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start marks the output running. Handlers are mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("output").Info().
		Int("quality", m.config.Quality).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop closes every client stream
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("output").Info().Uint64("frames", m.frameCount).Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes frame once and fans it out to every client. Slow
// clients drop frames.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = jpegData
	m.lastSize = frame.Bounds().Size()
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Snapshot returns the last encoded frame, nil before the first publish
func (m *MJPEGOutput) Snapshot() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.lastJPEG
}

// ClientCount is the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// GetHTTPHandler returns the multipart stream handler, mounted at /stream
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("output")

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log.Info().Int("clients", clientCount).Msg("MJPEG client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("MJPEG client disconnected")
		}()

		// the last frame first, so a paused session is not blank
		if last := m.Snapshot(); last != nil {
			if writePart(w, last) != nil {
				return
			}
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if writePart(w, jpegData) != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// GetSnapshotHandler serves the last frame as a single JPEG
func (m *MJPEGOutput) GetSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := m.Snapshot()
		if last == nil {
			http.Error(w, "no frame published yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(last)
	}
}

// GetViewerHandler returns the viewer page, mounted at /view. It shows the
// stream and the live statistics pushed over the stats websocket.
func (m *MJPEGOutput) GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

// GetStatsHandler returns a plain-text summary of the output itself
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		running := m.running
		frameCount := m.frameCount
		startTime := m.startTime
		m.mu.RUnlock()

		m.frameMu.RLock()
		lastUpdate := m.lastUpdate
		size := m.lastSize
		jpegBytes := len(m.lastJPEG)
		m.frameMu.RUnlock()

		var fps float64
		if running && !startTime.IsZero() {
			if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
				fps = float64(frameCount) / elapsed
			}
		}

		status := "stopped"
		if running {
			status = "running"
		}
		last := "never"
		if !lastUpdate.IsZero() {
			last = humanize.Time(lastUpdate)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "status:      %s\n", status)
		fmt.Fprintf(w, "resolution:  %dx%d\n", size.X, size.Y)
		fmt.Fprintf(w, "target fps:  %d\n", m.config.FPS)
		fmt.Fprintf(w, "actual fps:  %.2f\n", fps)
		fmt.Fprintf(w, "frames:      %s\n", humanize.Comma(int64(frameCount)))
		fmt.Fprintf(w, "frame size:  %s\n", humanize.Bytes(uint64(jpegBytes)))
		fmt.Fprintf(w, "clients:     %d\n", m.ClientCount())
		fmt.Fprintf(w, "last update: %s\n", last)
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>addertuner</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            color: #ccc;
            font-family: system-ui, -apple-system, sans-serif;
            display: flex;
            flex-direction: column;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: calc(100vh - 40px);
            object-fit: contain;
            image-rendering: pixelated;
            background: #000;
        }
        .stats {
            height: 40px;
            line-height: 40px;
            font-family: monospace;
            font-size: 13px;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="addertuner display">
    <div class="stats" id="stats">connecting...</div>
    <script>
        const el = document.getElementById('stats');
        function connect() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/stats/stream');
            ws.onmessage = (m) => {
                const s = JSON.parse(m.data);
                el.textContent = s.source_name + ' | ' + s.state +
                    ' | events ' + s.stats.events_total +
                    ' | ev/s ' + Math.round(s.stats.events_per_sec) +
                    ' | t ' + s.clock.ticks;
            };
            ws.onclose = () => setTimeout(connect, 1000);
        }
        connect();
    </script>
</body>
</html>`
