// Package render runs a WAV file through a bridge client on the offline
// server and writes the client's outputs to a new WAV file.
package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/logger"
	"github.com/tphakala/portbridge/internal/server/offline"
)

// DefaultBlockFrames is used when Options.BlockFrames is zero
const DefaultBlockFrames = 256

// Options describes one render job
type Options struct {
	InputPath  string
	OutputPath string

	// ClientName is the bridge client name, "render" when empty
	ClientName string
	// Outputs is the number of output ports and output channels, defaults to the input channel count
	Outputs int
	// BlockFrames is the frames per block handed to the routine
	BlockFrames int
	// BitDepth of the output file, defaults to the input bit depth
	BitDepth int

	Routine       bridge.ProcessFunc
	BridgeOptions []bridge.Option
}

// Result summarises a finished render
type Result struct {
	SampleRate     int
	BitDepth       int
	InputChannels  int
	OutputChannels int
	Frames         int64
	Blocks         uint64
	Elapsed        time.Duration
}

// File renders opts.InputPath into opts.OutputPath. It stops early with
// ctx's error when ctx is cancelled; the partial output file is still finalised.
func File(ctx context.Context, opts Options) (*Result, error) {
	log := logger.Global().Module("render")
	start := time.Now()

	in, err := os.Open(opts.InputPath)
	if err != nil {
		return nil, errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			FileContext(opts.InputPath, 0).
			Context("operation", "open_input").
			Build()
	}
	defer in.Close()

	var inSize int64
	if info, err := in.Stat(); err == nil {
		inSize = info.Size()
	}

	decoder := wav.NewDecoder(in)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV audio file").
			Component("render").
			Category(errors.CategoryFileParsing).
			FileContext(opts.InputPath, inSize).
			Context("operation", "read_info").
			Build()
	}

	inBitDepth := int(decoder.BitDepth)
	inDivisor, err := sampleDivisor(inBitDepth)
	if err != nil {
		return nil, err
	}

	opts = applyDefaults(opts, int(decoder.NumChans), inBitDepth)
	outDivisor, err := sampleDivisor(opts.BitDepth)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SampleRate:     int(decoder.SampleRate),
		BitDepth:       opts.BitDepth,
		InputChannels:  int(decoder.NumChans),
		OutputChannels: opts.Outputs,
	}

	srv := offline.New(offline.Config{
		SampleRate:     decoder.SampleRate,
		MaxBlockFrames: opts.BlockFrames,
	})
	layout := bridge.Layout{Inputs: res.InputChannels, Outputs: res.OutputChannels}
	client, err := bridge.New(srv, opts.ClientName, layout, opts.Routine, opts.BridgeOptions...)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	conn := srv.Conn(opts.ClientName)
	inPorts := portStorage(conn, bridge.Input, layout.Inputs)
	outPorts := portStorage(conn, bridge.Output, layout.Outputs)

	if err := client.Activate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return nil, errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("operation", "create_output_dir").
			Build()
	}
	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return nil, errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("operation", "create_output").
			Build()
	}

	encoder := wav.NewEncoder(out, res.SampleRate, opts.BitDepth, res.OutputChannels, 1)

	log.Info("render started",
		logger.String("input", opts.InputPath),
		logger.String("output", opts.OutputPath),
		logger.Int("sample_rate", res.SampleRate),
		logger.String("layout", layout.String()),
		logger.Int("block_frames", opts.BlockFrames))

	inBuf := &audio.IntBuffer{
		Data:   make([]int, opts.BlockFrames*res.InputChannels),
		Format: &audio.Format{SampleRate: res.SampleRate, NumChannels: res.InputChannels},
	}
	outBuf := &audio.IntBuffer{
		Data:           make([]int, opts.BlockFrames*res.OutputChannels),
		Format:         &audio.Format{SampleRate: res.SampleRate, NumChannels: res.OutputChannels},
		SourceBitDepth: opts.BitDepth,
	}

	runErr := func() error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			n, err := decoder.PCMBuffer(inBuf)
			if err != nil {
				return errors.New(err).
					Component("render").
					Category(errors.CategoryFileParsing).
					FileContext(opts.InputPath, inSize).
					Context("operation", "decode").
					Build()
			}
			frames := n / res.InputChannels
			if frames == 0 {
				return nil
			}

			deinterleave(inBuf.Data[:frames*res.InputChannels], inPorts, inDivisor)
			if _, err := srv.Cycle(uint32(frames)); err != nil {
				return err
			}
			interleave(outPorts, frames, outBuf.Data[:frames*res.OutputChannels], outDivisor)

			chunk := &audio.IntBuffer{
				Data:           outBuf.Data[:frames*res.OutputChannels],
				Format:         outBuf.Format,
				SourceBitDepth: opts.BitDepth,
			}
			if err := encoder.Write(chunk); err != nil {
				return errors.New(err).
					Component("render").
					Category(errors.CategoryFileIO).
					Context("operation", "encode").
					Build()
			}
			res.Frames += int64(frames)
		}
	}()

	if !client.Stop() {
		log.Warn("failed to stop render client", logger.Error(client.Err()))
	}
	res.Blocks = client.Blocks()

	if err := finalizeOutput(encoder, out); err != nil && runErr == nil {
		runErr = errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			FileContext(opts.OutputPath, 0).
			Context("operation", "finalize_output").
			Build()
	}

	res.Elapsed = time.Since(start)
	if runErr != nil {
		return res, runErr
	}

	log.Info("render complete",
		logger.Int64("frames", res.Frames),
		logger.Uint64("blocks", res.Blocks),
		logger.Duration("elapsed", res.Elapsed))

	return res, nil
}

// finalizeOutput writes the WAV header through encoder and closes the file.
// The file is closed even when the encoder fails; the first error wins.
func finalizeOutput(encoder, file io.Closer) error {
	encErr := encoder.Close()
	fileErr := file.Close()
	if encErr != nil {
		return encErr
	}
	return fileErr
}

func applyDefaults(opts Options, inChannels, inBitDepth int) Options {
	if opts.ClientName == "" {
		opts.ClientName = "render"
	}
	if opts.Outputs == 0 {
		opts.Outputs = inChannels
	}
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = DefaultBlockFrames
	}
	if opts.BitDepth == 0 {
		opts.BitDepth = inBitDepth
	}
	return opts
}

func portStorage(conn *offline.Conn, dir bridge.Direction, n int) [][]float32 {
	ports := make([][]float32, n)
	for i := range n {
		ports[i] = conn.Port(bridge.PortName(dir, i)).Samples()
	}
	return ports
}

// sampleDivisor returns the full-scale value for a PCM bit depth
func sampleDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.New(fmt.Errorf("unsupported bit depth: %d", bitDepth)).
			Component("render").
			Category(errors.CategoryValidation).
			Context("bit_depth", bitDepth).
			Build()
	}
}

// deinterleave splits interleaved PCM into per-port float storage
func deinterleave(data []int, ports [][]float32, divisor float32) {
	channels := len(ports)
	for i, v := range data {
		ports[i%channels][i/channels] = float32(v) / divisor
	}
}

// interleave converts per-port float storage back to clamped interleaved PCM
func interleave(ports [][]float32, frames int, dst []int, divisor float32) {
	channels := len(ports)
	maxVal := float64(divisor) - 1
	minVal := -float64(divisor)
	for f := range frames {
		for ch := range channels {
			v := float64(ports[ch][f]) * float64(divisor)
			v = min(max(v, minVal), maxVal)
			dst[f*channels+ch] = int(v)
		}
	}
}
