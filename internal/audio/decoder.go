// Package audio extracts mono PCM sample sequences from uploaded media
// files using the ffmpeg CLI.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Decoder extracts a mono float64 sample sequence from a media file,
// resampled to the requested rate.
type Decoder interface {
	Decode(ctx context.Context, inputPath string, sampleRate int) ([]float64, error)
}

// supportedExtensions lists the upload formats ffmpeg is asked to decode.
// Video containers are accepted; only their audio track is used.
var supportedExtensions = map[string]bool{
	".wav": true,
	".mp3": true,
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

// IsSupported reports whether the file's extension is an accepted upload
// format. The check is case-insensitive.
func IsSupported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// SupportedExtensions returns the accepted upload extensions, sorted for
// deterministic error messages.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FFmpegDecoder implements Decoder using the ffmpeg CLI.
type FFmpegDecoder struct {
	ffmpegPath string
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegDecoder(ffmpegPath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath}
}

// Decode extracts the audio track of the input file as mono signed 16-bit
// PCM at the given sample rate and converts it to float64 samples in
// [-1, 1). Video streams are ignored.
func (d *FFmpegDecoder) Decode(ctx context.Context, inputPath string, sampleRate int) ([]float64, error) {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file does not exist: %s", inputPath)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-hide_banner",
		"-loglevel", "error",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}

	return DecodeS16LE(stdout.Bytes()), nil
}

// DecodeS16LE converts little-endian signed 16-bit PCM bytes to float64
// samples in [-1, 1). A trailing odd byte is discarded.
func DecodeS16LE(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768.0
	}
	return samples
}

// Verify interface implementation at compile time.
var _ Decoder = (*FFmpegDecoder)(nil)
