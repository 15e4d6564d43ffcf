package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/bili"
	"github.com/bugmaschine/bilitool/pkg/ffmpeg"
	"github.com/bugmaschine/bilitool/pkg/utils"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type AudioOptions struct {
	Dir          string
	Native       bool
	MP3          bool
	Quality      int
	Keep         bool
	SkipExisting bool
}

// AudioJob downloads the audio of videos one at a time, either through
// yt-dlp or natively, and optionally converts it to mp3.
type AudioJob struct {
	opts  AudioOptions
	src   AudioSource
	dl    *Downloader
	ytdlp *YtDlp
	ff    *ffmpeg.Ffmpeg
	cache *DirectoryCache
}

// NewAudioJob prepares the output directory. ytdlp may be nil in native mode
// and ff may be nil when no conversion is requested.
func NewAudioJob(opts AudioOptions, src AudioSource, dl *Downloader, ytdlp *YtDlp, ff *ffmpeg.Ffmpeg) (*AudioJob, error) {
	if !opts.Native && ytdlp == nil {
		return nil, ErrYtDlpMissing
	}
	if opts.MP3 && ff == nil {
		return nil, ffmpeg.ErrNotFound
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	cache, err := NewDirectoryCache(opts.Dir)
	if err != nil {
		return nil, err
	}
	return &AudioJob{opts: opts, src: src, dl: dl, ytdlp: ytdlp, ff: ff, cache: cache}, nil
}

// Run downloads one part (1-based; 0 means the first) of bvid and returns the
// final file, or "" when it was skipped.
func (j *AudioJob) Run(ctx context.Context, bvid string, page int) (string, error) {
	v, err := j.src.Video(ctx, bvid)
	if err != nil {
		return "", err
	}

	cid := v.CID
	if page <= 0 {
		page = 1
	}
	if page > 1 {
		if page > len(v.Pages) {
			return "", fmt.Errorf("%s has %d parts, no P%d", bvid, len(v.Pages), page)
		}
		cid = v.Pages[page-1].CID
	}

	stem := AudioStem(v.Title, v.BVID, page, len(v.Pages))
	if j.opts.SkipExisting && j.cache.Has(stem, AudioExtensions...) {
		slog.Info("Skipping, audio already exists", "file", stem)
		return "", nil
	}

	var path string
	if j.opts.Native {
		path, err = j.dl.NativeAudio(ctx, j.src, v, cid, j.opts.Dir, stem, j.opts.SkipExisting)
	} else {
		url := "https://www.bilibili.com/video/" + v.BVID
		if len(v.Pages) > 1 {
			url += fmt.Sprintf("?p=%d", page)
		}
		path, err = j.ytdlp.Download(ctx, url, j.opts.Dir, stem)
	}
	if err != nil {
		return "", err
	}
	j.cache.Add(filepath.Base(path))

	if !j.opts.MP3 || strings.EqualFold(filepath.Ext(path), ".mp3") {
		return path, nil
	}
	return j.toMP3(ctx, path)
}

func (j *AudioJob) toMP3(ctx context.Context, src string) (string, error) {
	out := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp3"

	total, err := j.ff.Duration(ctx, src)
	if err != nil {
		slog.Warn("Unknown duration, conversion progress unavailable", "error", err)
	}
	name := filepath.Base(out)
	bar := j.dl.Progress().AddBar(total.Milliseconds(),
		mpb.PrependDecorators(decor.Name(name+" ", decor.WC{W: len(name) + 1})),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)

	err = j.ff.ConvertMP3(ctx, src, out, j.opts.Quality, func(pos time.Duration) {
		bar.SetCurrent(min(pos.Milliseconds(), total.Milliseconds()))
	})
	if err != nil {
		bar.Abort(false)
		os.Remove(out)
		return "", err
	}
	bar.SetTotal(total.Milliseconds(), true)
	j.cache.Add(name)

	if !j.opts.Keep {
		if err := utils.RemoveFileIgnoreNotExists(src); err != nil {
			slog.Warn("Could not remove source audio", "file", src, "error", err)
		}
	}
	return out, nil
}

// RecordLive snapshots the current HLS window of a live room into dir.
func RecordLive(ctx context.Context, client *bili.Client, dl *Downloader, ff *ffmpeg.Ffmpeg, room int64, dir string) (string, error) {
	info, err := client.RoomPlayInfo(ctx, room)
	if err != nil {
		return "", err
	}
	if info.LiveStatus != 1 {
		return "", fmt.Errorf("room %d is %s", room, bili.LiveStatusName(info.LiveStatus))
	}
	playlist, ok := info.HLS()
	if !ok {
		return "", fmt.Errorf("room %d offers no HLS stream", room)
	}

	name := fmt.Sprintf("live-%d-%s.mp4", info.RoomID, time.Now().Format("20060102-150405"))
	var remux Remuxer
	if ff != nil {
		if _, err := ff.Path(); err == nil {
			remux = ff
		}
	}
	return dl.HLSSnapshot(ctx, playlist, "https://live.bilibili.com/", filepath.Join(dir, name), remux)
}
