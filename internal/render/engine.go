package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/reelsched/api/internal/config"
)

// Engine turns downloaded inputs into one output video. Implementations report
// failure only through the returned error.
type Engine interface {
	NormalizeImage(ctx context.Context, src, dst string, d time.Duration) error
	NormalizeVideo(ctx context.Context, src, dst string) error
	Concat(ctx context.Context, clips []string, dst string) error
	MuxAudio(ctx context.Context, video, audio, dst string) error
}

// EngineError is a non-zero exit of the render process.
type EngineError struct {
	Op       string
	ExitCode int
	Detail   string
}

func (e *EngineError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("render %s failed (exit %d)", e.Op, e.ExitCode)
	}
	return fmt.Sprintf("render %s failed (exit %d): %s", e.Op, e.ExitCode, e.Detail)
}

// Runner executes the binary with args and returns its stderr.
type Runner func(ctx context.Context, bin string, args []string) (stderr []byte, err error)

func execRunner(ctx context.Context, bin string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// FFmpeg is the Engine backed by the ffmpeg binary.
type FFmpeg struct {
	bin    string
	width  int
	height int
	fps    int
	run    Runner
}

func NewFFmpeg(cfg config.RenderConfig) *FFmpeg {
	f := &FFmpeg{
		bin:    cfg.FFmpegPath,
		width:  cfg.Width,
		height: cfg.Height,
		fps:    cfg.FPS,
		run:    execRunner,
	}
	if f.bin == "" {
		f.bin = "ffmpeg"
	}
	if f.width <= 0 || f.height <= 0 {
		f.width, f.height = 1080, 1920
	}
	if f.fps <= 0 {
		f.fps = 30
	}
	return f
}

// WithRunner swaps the process runner.
func (f *FFmpeg) WithRunner(r Runner) *FFmpeg {
	f.run = r
	return f
}

func (f *FFmpeg) NormalizeImage(ctx context.Context, src, dst string, d time.Duration) error {
	return f.exec(ctx, "normalize image", f.imageArgs(src, dst, d))
}

func (f *FFmpeg) NormalizeVideo(ctx context.Context, src, dst string) error {
	return f.exec(ctx, "normalize video", f.videoArgs(src, dst))
}

// Concat joins already-normalized clips with the concat demuxer, writing the
// list file next to dst.
func (f *FFmpeg) Concat(ctx context.Context, clips []string, dst string) error {
	if len(clips) == 0 {
		return errors.New("render concat: no clips")
	}

	listPath := filepath.Join(filepath.Dir(dst), "concat.txt")
	if err := os.WriteFile(listPath, []byte(concatList(clips)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return f.exec(ctx, "concat", concatArgs(listPath, dst))
}

func (f *FFmpeg) MuxAudio(ctx context.Context, video, audio, dst string) error {
	return f.exec(ctx, "mux audio", muxArgs(video, audio, dst))
}

func (f *FFmpeg) exec(ctx context.Context, op string, args []string) error {
	stderr, err := f.run(ctx, f.bin, args)
	if err == nil {
		return nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	detail := lastLine(stderr)
	if detail == "" && code == -1 {
		detail = err.Error()
	}
	return &EngineError{Op: op, ExitCode: code, Detail: detail}
}

func (f *FFmpeg) scaleFilter() string {
	w, h := strconv.Itoa(f.width), strconv.Itoa(f.height)
	return "scale=" + w + ":" + h + ":force_original_aspect_ratio=decrease," +
		"pad=" + w + ":" + h + ":(ow-iw)/2:(oh-ih)/2:color=black," +
		"setsar=1,fps=" + strconv.Itoa(f.fps) + ",format=yuv420p"
}

func (f *FFmpeg) encodeArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(f.fps),
		"-an",
	}
}

func (f *FFmpeg) imageArgs(src, dst string, d time.Duration) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-loop", "1",
		"-t", formatSeconds(d),
		"-i", src,
		"-vf", f.scaleFilter(),
	}
	args = append(args, f.encodeArgs()...)
	return append(args, dst)
}

func (f *FFmpeg) videoArgs(src, dst string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vf", f.scaleFilter(),
	}
	args = append(args, f.encodeArgs()...)
	return append(args, dst)
}

func concatArgs(listPath, dst string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		dst,
	}
}

func muxArgs(video, audio, dst string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		dst,
	}
}

func concatList(clips []string) string {
	var b strings.Builder
	for _, c := range clips {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(c, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
