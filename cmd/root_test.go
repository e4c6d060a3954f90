package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := RootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portbridge", "config.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	require.FileExists(t, path)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err, "existing file is not overwritten without --force")

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "--name", "desk", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "name: desk")
	assert.Contains(t, out, "backend: jack")
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	f, err := os.Create(in)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           []int{100, -100, 200, -200},
		Format:         &audio.Format{SampleRate: 44100, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	stdout, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "render", in, out)
	require.Error(t, err, "explicit config file must exist")

	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("routine:\n  name: silence\n"), 0o600))
	stdout, err = execute(t, "--config", cfg, "render", "--channels", "2", in, out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "4 frames")
	assert.Contains(t, stdout, "1 -> 2 channels")

	rf, err := os.Open(out)
	require.NoError(t, err)
	defer rf.Close()
	buf, err := wav.NewDecoder(rf).FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, make([]int, 8), buf.Data, "silence routine writes zeros")
}
