package codec

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/addertuner/internal/event"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() Header {
	return Header{
		Width:          4,
		Height:         4,
		Channels:       1,
		TicksPerSecond: 7650,
		RefInterval:    255,
		DeltaTMax:      30600,
		SourceCamera:   SourceFramedU8,
	}
}

func testEvents() []event.Event {
	return []event.Event{
		{X: 0, Y: 0, C: 0, D: 7, DeltaT: 255},
		{X: 3, Y: 1, C: 0, D: event.DZeroIntegration, DeltaT: 30600},
		{X: 2, Y: 3, C: 0, D: 4, DeltaT: 40},
	}
}

func TestRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.adder")
	w, err := Create(path, testHeader())
	require.NoError(t, err)
	require.NoError(t, w.WriteBatches([][]event.Event{testEvents()[:2], testEvents()[2:]}))
	assert.Equal(t, int64(3), w.Count())
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	want := testHeader()
	want.Version = Version
	want.DataStart = HeaderSize
	if diff := cmp.Diff(want, r.Header()); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(HeaderSize), r.Position())

	n, err := r.EventCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var got []event.Event
	for {
		ev, err := r.DecodeEvent()
		if err == ErrEndOfStream {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}
	if diff := cmp.Diff(testEvents(), got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(HeaderSize+3*EventSize), r.Position())
}

func TestSeekToStartOfData(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testHeader())
	require.NoError(t, err)
	require.NoError(t, w.WriteEvents(testEvents()))
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	first, err := r.DecodeEvent()
	require.NoError(t, err)
	_, err = r.DecodeEvent()
	require.NoError(t, err)

	require.NoError(t, r.SeekToStartOfData())
	assert.Equal(t, r.Header().DataStart, r.Position())
	again, err := r.DecodeEvent()
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestTruncatedEvent(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testHeader())
	require.NoError(t, err)
	require.NoError(t, w.WriteEvents(testEvents()[:1]))
	require.NoError(t, w.Close())
	data := append(buf.Bytes(), 1, 2, 3)

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.DecodeEvent()
	require.NoError(t, err)
	_, err = r.DecodeEvent()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEndOfStream)
}

func TestDeltaTAboveMaximum(t *testing.T) {
	h := testHeader()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	require.NoError(t, err)
	require.NoError(t, w.WriteEvents([]event.Event{
		{X: 1, D: 3, DeltaT: h.DeltaTMax},
		{X: 2, D: 3, DeltaT: h.DeltaTMax + 1},
	}))
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	ev, err := r.DecodeEvent()
	require.NoError(t, err)
	assert.Equal(t, h.DeltaTMax, ev.DeltaT)

	_, err = r.DecodeEvent()
	require.ErrorIs(t, err, ErrDeltaTOutOfRange)
	assert.Equal(t, r.Header().DataStart+2*EventSize, r.Position())

	_, err = r.DecodeEvent()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestBadHeaders(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testHeader())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	good := buf.Bytes()

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{"short", func(b []byte) []byte { return b[:5] }, ErrBadHeader},
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrBadHeader},
		{"version", func(b []byte) []byte { b[4] = 9; return b }, ErrUnsupportedVersion},
		{"channels", func(b []byte) []byte { b[9] = 2; return b }, ErrBadHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := NewReader(bytes.NewReader(data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = NewWriter(&buf, Header{Width: 1, Height: 1, Channels: 1})
	assert.ErrorIs(t, err, ErrBadHeader, "zero time base")
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.adder"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFrameRate(t *testing.T) {
	assert.InDelta(t, 30, testHeader().FrameRate(), 1e-9)
	assert.Zero(t, Header{}.FrameRate())
	assert.Equal(t, "davis-u8", SourceDavisU8.String())
}
