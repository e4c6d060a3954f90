package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/routines"
)

// writeTestWAV writes interleaved PCM data to a new WAV file
func writeTestWAV(t *testing.T, path string, sampleRate, bitDepth, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
}

func readTestWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return dec, buf.Data
}

func stereoRamp(frames int) []int {
	data := make([]int, 0, frames*2)
	for i := range frames {
		data = append(data, i*10, -i*10)
	}
	return data
}

func TestFilePassthrough(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out", "result.wav")
	source := stereoRamp(1000)
	writeTestWAV(t, in, 48000, 16, 2, source)

	res, err := File(t.Context(), Options{
		InputPath:   in,
		OutputPath:  out,
		BlockFrames: 128,
		Routine:     routines.Passthrough,
	})
	require.NoError(t, err)

	assert.Equal(t, 48000, res.SampleRate)
	assert.Equal(t, 16, res.BitDepth)
	assert.Equal(t, 2, res.InputChannels)
	assert.Equal(t, 2, res.OutputChannels)
	assert.Equal(t, int64(1000), res.Frames)
	assert.Equal(t, uint64(8), res.Blocks, "1000 frames in blocks of 128")

	dec, got := readTestWAV(t, out)
	assert.Equal(t, uint32(48000), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, source, got)
}

func TestFileChangesChannelCount(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	writeTestWAV(t, in, 16000, 16, 2, stereoRamp(300))

	res, err := File(t.Context(), Options{
		InputPath:  in,
		OutputPath: out,
		Outputs:    3,
		Routine:    routines.Passthrough,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.OutputChannels)

	dec, got := readTestWAV(t, out)
	require.Equal(t, uint16(3), dec.NumChans)
	require.Len(t, got, 900)
	for f := range 300 {
		assert.Equal(t, f*10, got[f*3])
		assert.Equal(t, -f*10, got[f*3+1])
		assert.Zero(t, got[f*3+2], "frame %d of the unmatched output", f)
	}
}

func TestFileClampsOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	writeTestWAV(t, in, 8000, 16, 1, make([]int, 64))

	gain := func(ctx bridge.Context) {
		out := ctx.Out(0)
		for i := range out {
			if i%2 == 0 {
				out[i] = 2
			} else {
				out[i] = -2
			}
		}
	}

	_, err := File(t.Context(), Options{InputPath: in, OutputPath: out, Routine: gain})
	require.NoError(t, err)

	_, got := readTestWAV(t, out)
	require.Len(t, got, 64)
	assert.Equal(t, 32767, got[0])
	assert.Equal(t, -32768, got[1])
}

func TestFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("missing input", func(t *testing.T) {
		t.Parallel()
		_, err := File(t.Context(), Options{
			InputPath:  filepath.Join(dir, "nope.wav"),
			OutputPath: filepath.Join(dir, "out.wav"),
			Routine:    routines.Passthrough,
		})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
		ext, ok := errors.ContextValue(err, "file_extension")
		require.True(t, ok)
		assert.Equal(t, "wav", ext)
	})

	t.Run("not a wav file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "text.wav")
		require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF data"), 0o600))
		_, err := File(t.Context(), Options{
			InputPath:  path,
			OutputPath: filepath.Join(dir, "out2.wav"),
			Routine:    routines.Passthrough,
		})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
		size, ok := errors.ContextValue(err, "file_size_category")
		require.True(t, ok)
		assert.Equal(t, "tiny", size)
	})

	t.Run("nil routine", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "ok.wav")
		writeTestWAV(t, path, 8000, 16, 1, make([]int, 16))
		_, err := File(t.Context(), Options{
			InputPath:  path,
			OutputPath: filepath.Join(dir, "out3.wav"),
		})
		require.ErrorIs(t, err, bridge.ErrNilProcess)
	})
}

func TestFileCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeTestWAV(t, in, 8000, 16, 1, make([]int, 512))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := File(ctx, Options{
		InputPath:  in,
		OutputPath: filepath.Join(dir, "out.wav"),
		Routine:    routines.Passthrough,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.Frames)
}

func TestInterleaveRoundTrip(t *testing.T) {
	t.Parallel()

	ports := [][]float32{make([]float32, 4), make([]float32, 4)}
	deinterleave([]int{1, -1, 2, -2, 3, -3, 4, -4}, ports, 32768)
	assert.InDelta(t, 2.0/32768, ports[0][1], 1e-9)
	assert.InDelta(t, -3.0/32768, ports[1][2], 1e-9)

	dst := make([]int, 8)
	interleave(ports, 4, dst, 32768)
	assert.Equal(t, []int{1, -1, 2, -2, 3, -3, 4, -4}, dst)
}

func TestSampleDivisor(t *testing.T) {
	t.Parallel()

	for depth, want := range map[int]float32{16: 32768, 24: 8388608, 32: 2147483648} {
		got, err := sampleDivisor(depth)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 0)
	}
	_, err := sampleDivisor(8)
	require.Error(t, err)
}

type closeRecorder struct {
	err    error
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestFinalizeOutput(t *testing.T) {
	t.Parallel()

	errEncode := errors.NewStd("header write failed")
	errFile := errors.NewStd("write back failed")

	tests := []struct {
		name    string
		encErr  error
		fileErr error
		want    error
	}{
		{name: "both succeed"},
		{name: "file close fails", fileErr: errFile, want: errFile},
		{name: "encoder fails first", encErr: errEncode, fileErr: errFile, want: errEncode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			enc := &closeRecorder{err: tt.encErr}
			file := &closeRecorder{err: tt.fileErr}

			err := finalizeOutput(enc, file)

			assert.True(t, enc.closed)
			assert.True(t, file.closed, "file is closed even when the encoder fails")
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}
