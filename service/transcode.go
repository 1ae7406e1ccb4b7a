package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type rendition struct {
	Width     int
	Height    int
	Bitrate   string
	AudioRate string
}

var renditions = []rendition{
	{Width: 256, Height: 144, Bitrate: "200k", AudioRate: "64k"},
	{Width: 640, Height: 360, Bitrate: "800k", AudioRate: "96k"},
	{Width: 854, Height: 480, Bitrate: "1500k", AudioRate: "128k"},
	{Width: 1280, Height: 720, Bitrate: "3000k", AudioRate: "192k"},
	{Width: 1920, Height: 1080, Bitrate: "5000k", AudioRate: "192k"},
}

// transcodeToHLS produces one VOD playlist per rendition plus a shared audio
// playlist, all in a single ffmpeg invocation.
func transcodeToHLS(inputFilepath, outputDir string) error {
	var filters []string
	for _, r := range renditions {
		filters = append(filters,
			fmt.Sprintf("[0:v]scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=w=%d:h=%d:x=(ow-iw)/2:y=(oh-ih)/2[v%d]",
				r.Width, r.Height, r.Width, r.Height, r.Height))
	}

	args := []string{
		"-i", inputFilepath,
		"-filter_complex", strings.Join(filters, "; "),
	}

	for _, r := range renditions {
		args = append(args,
			"-map", fmt.Sprintf("[v%d]", r.Height),
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "22",
			"-b:v", r.Bitrate,
			"-maxrate", r.Bitrate,
			"-bufsize", r.Bitrate,
			"-f", "hls",
			"-hls_time", "6",
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(outputDir, fmt.Sprintf("%dp_%%03d.ts", r.Height)),
			filepath.Join(outputDir, fmt.Sprintf("%dp.m3u8", r.Height)),
		)
	}

	audioRate := renditions[len(renditions)-1].AudioRate
	args = append(args,
		"-map", "0:a:0?",
		"-c:a", "aac",
		"-b:a", audioRate,
		"-f", "hls",
		"-hls_time", "6",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outputDir, "audio_%03d.ts"),
		filepath.Join(outputDir, "audio.m3u8"))

	cmd := exec.Command("ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, string(output))
	}

	return nil
}

func writeMasterPlaylist(outputDir string) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n\n")
	b.WriteString(`#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="audio",NAME="English",DEFAULT=YES,AUTOSELECT=YES,URI="audio.m3u8"` + "\n\n")

	for _, r := range renditions {
		var videoKbps, audioKbps int
		fmt.Sscanf(r.Bitrate, "%dk", &videoKbps)
		fmt.Sscanf(r.AudioRate, "%dk", &audioKbps)
		bandwidth := (videoKbps + audioKbps) * 1000

		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"avc1.640028,mp4a.40.2\",AUDIO=\"audio\"\n", bandwidth, r.Width, r.Height))
		b.WriteString(fmt.Sprintf("%dp.m3u8\n", r.Height))
	}

	return os.WriteFile(filepath.Join(outputDir, "master.m3u8"), []byte(b.String()), 0644)
}
