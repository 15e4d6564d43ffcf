package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bugmaschine/bilitool/pkg/bili"
)

var ErrNoAudio = errors.New("no audio stream")

// AudioSource is the part of the API client native downloads need.
type AudioSource interface {
	Video(ctx context.Context, bvid string) (*bili.VideoInfo, error)
	AudioStreams(ctx context.Context, bvid string, cid int64) ([]bili.AudioStream, error)
}

func audioExt(s bili.AudioStream) string {
	c := strings.ToLower(s.Codecs)
	switch {
	case strings.Contains(c, "flac"):
		return ".flac"
	case strings.Contains(c, "ec-3"), strings.Contains(c, "ac-3"):
		return ".eac3"
	default:
		return ".m4a"
	}
}

// NativeAudio downloads the best DASH audio track of a video part straight
// from the CDN, trying backup URLs when the primary fails. With skipExisting a
// track already on disk is kept and returned as is.
func (d *Downloader) NativeAudio(ctx context.Context, src AudioSource, v *bili.VideoInfo, cid int64, dir, stem string, skipExisting bool) (string, error) {
	streams, err := src.AudioStreams(ctx, v.BVID, cid)
	if errors.Is(err, bili.ErrNotFound) || (err == nil && len(streams) == 0) {
		return "", fmt.Errorf("%w for %s", ErrNoAudio, v.BVID)
	}
	if err != nil {
		return "", err
	}

	best := streams[0]
	out := filepath.Join(dir, stem+audioExt(best))
	referer := "https://www.bilibili.com/video/" + v.BVID

	var lastErr error
	for _, u := range append([]string{best.URL}, best.BackupURL...) {
		task := NewTask(out, u).
			SetOverwriteFile(true).
			SetSkipExisting(skipExisting).
			SetReferer(referer).
			SetCustomMessage(stem)
		if lastErr = d.DownloadToFile(ctx, task); lastErr == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("Audio mirror failed, trying next", "error", lastErr)
	}
	return "", lastErr
}
