package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsched/api/internal/config"
)

func testEngine() *FFmpeg {
	return NewFFmpeg(config.RenderConfig{FFmpegPath: "ffmpeg", Width: 1080, Height: 1920, FPS: 30})
}

func TestImageArgs_FixedDurationLoop(t *testing.T) {
	args := testEngine().imageArgs("/s/in.jpg", "/s/out.mp4", 2500*time.Millisecond)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-loop 1 -t 2.500 -i /s/in.jpg")
	assert.Contains(t, joined, "scale=1080:1920:force_original_aspect_ratio=decrease")
	assert.Contains(t, joined, "-pix_fmt yuv420p")
	assert.Contains(t, joined, "-an")
	assert.Equal(t, "/s/out.mp4", args[len(args)-1])
}

func TestVideoArgs_CommonFormat(t *testing.T) {
	args := testEngine().videoArgs("/s/in.mov", "/s/out.mp4")
	joined := strings.Join(args, " ")

	assert.NotContains(t, joined, "-loop")
	assert.Contains(t, joined, "fps=30")
	assert.Contains(t, joined, "-r 30")
	assert.Contains(t, joined, "-c:v libx264")
}

func TestMuxArgs_TrimToShortest(t *testing.T) {
	joined := strings.Join(muxArgs("/s/v.mp4", "/s/a.mp3", "/s/final.mp4"), " ")
	assert.Contains(t, joined, "-shortest")
	assert.Contains(t, joined, "-map 0:v:0 -map 1:a:0")
}

func TestConcatList_Escapes(t *testing.T) {
	list := concatList([]string{"/s/a.mp4", "/s/it's.mp4"})
	assert.Equal(t, "file '/s/a.mp4'\nfile '/s/it'\\''s.mp4'\n", list)
}

func TestConcat_WritesListAndRuns(t *testing.T) {
	dir := t.TempDir()
	var gotArgs []string
	eng := testEngine().WithRunner(func(ctx context.Context, bin string, args []string) ([]byte, error) {
		gotArgs = args
		return nil, nil
	})

	dst := filepath.Join(dir, "joined.mp4")
	require.NoError(t, eng.Concat(context.Background(), []string{"/x/1.mp4", "/x/2.mp4"}, dst))

	list, err := os.ReadFile(filepath.Join(dir, "concat.txt"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(list), "file "))
	assert.Contains(t, strings.Join(gotArgs, " "), "-f concat -safe 0")

	assert.Error(t, eng.Concat(context.Background(), nil, dst))
}

func TestExec_FailureCarriesLastStderrLine(t *testing.T) {
	eng := testEngine().WithRunner(func(ctx context.Context, bin string, args []string) ([]byte, error) {
		return []byte("warning: foo\n/s/in.jpg: Invalid data found when processing input\n"), errors.New("exit status 1")
	})

	err := eng.NormalizeImage(context.Background(), "/s/in.jpg", "/s/out.mp4", time.Second)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "normalize image", engErr.Op)
	assert.Equal(t, "/s/in.jpg: Invalid data found when processing input", engErr.Detail)
}

func TestExec_NoOutputStillHasMessage(t *testing.T) {
	eng := testEngine().WithRunner(func(ctx context.Context, bin string, args []string) ([]byte, error) {
		return nil, errors.New(`exec: "ffmpeg": executable file not found in $PATH`)
	})

	err := eng.MuxAudio(context.Background(), "v", "a", "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable file not found")
}

func TestNewFFmpeg_Defaults(t *testing.T) {
	f := NewFFmpeg(config.RenderConfig{})
	assert.Equal(t, "ffmpeg", f.bin)
	assert.Equal(t, 1080, f.width)
	assert.Equal(t, 1920, f.height)
	assert.Equal(t, 30, f.fps)
}
