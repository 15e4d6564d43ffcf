package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Remuxer rewraps a media file into another container.
type Remuxer interface {
	Remux(ctx context.Context, in, out string) error
}

// HLSSnapshot downloads the segments a live playlist currently lists into
// outputPath. The raw stream is written next to it (.ts, or .m4s for fmp4)
// and remuxed when remux is non-nil; otherwise the raw file is the result.
// It returns the path of the file it produced.
func (d *Downloader) HLSSnapshot(ctx context.Context, playlistURL, referer, outputPath string, remux Remuxer) (string, error) {
	media, base, err := d.mediaPlaylist(ctx, playlistURL, referer)
	if err != nil {
		return "", err
	}

	var segments []*m3u8.MediaSegment
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		if seg.Key != nil && seg.Key.Method != "" && seg.Key.Method != "NONE" {
			return "", fmt.Errorf("unsupported encryption method: %s", seg.Key.Method)
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", errors.New("playlist has no segments")
	}

	initURI := ""
	if media.Map != nil {
		initURI = media.Map.URI
	} else if segments[0].Map != nil {
		initURI = segments[0].Map.URI
	}

	ext := ".ts"
	if initURI != "" {
		ext = ".m4s"
	}
	rawPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ext
	if err := os.MkdirAll(filepath.Dir(rawPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.OpenFile(rawPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer out.Close()

	message := filepath.Base(outputPath)
	bar := d.progress.AddBar(int64(len(segments)),
		mpb.PrependDecorators(
			decor.Name(message+" ", decor.WC{W: len(message) + 1}),
			decor.CountersNoUnit("%d / %d segments"),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)

	if initURI != "" {
		if err := d.appendResource(ctx, base, initURI, referer, out); err != nil {
			bar.Abort(false)
			return "", fmt.Errorf("init segment: %w", err)
		}
	}
	for _, seg := range segments {
		if err := d.appendResource(ctx, base, seg.URI, referer, out); err != nil {
			bar.Abort(false)
			return "", err
		}
		bar.Increment()
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	if remux == nil || rawPath == outputPath {
		return rawPath, nil
	}
	slog.Debug("Remuxing with FFmpeg", "in", rawPath, "out", outputPath)
	if err := remux.Remux(ctx, rawPath, outputPath); err != nil {
		slog.Warn("FFmpeg remux failed, keeping the raw stream", "error", err)
		return rawPath, nil
	}
	os.Remove(rawPath)
	return outputPath, nil
}

// mediaPlaylist fetches playlistURL and follows a master playlist to its
// highest-bandwidth variant.
func (d *Downloader) mediaPlaylist(ctx context.Context, playlistURL, referer string) (*m3u8.MediaPlaylist, *url.URL, error) {
	resp, err := d.get(ctx, playlistURL, referer)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	p, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode m3u8: %w", err)
	}
	base := resp.Request.URL

	switch listType {
	case m3u8.MEDIA:
		return p.(*m3u8.MediaPlaylist), base, nil
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		if len(master.Variants) == 0 {
			return nil, nil, errors.New("no variants in master playlist")
		}
		sort.Slice(master.Variants, func(i, j int) bool {
			return master.Variants[i].Bandwidth > master.Variants[j].Bandwidth
		})
		variantURL, err := base.Parse(master.Variants[0].URI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse variant URL: %w", err)
		}
		media, mediaBase, err := d.mediaPlaylist(ctx, variantURL.String(), referer)
		if err != nil {
			return nil, nil, err
		}
		return media, mediaBase, nil
	default:
		return nil, nil, errors.New("unsupported playlist type")
	}
}

func (d *Downloader) appendResource(ctx context.Context, base *url.URL, ref, referer string, w io.Writer) error {
	u, err := base.Parse(ref)
	if err != nil {
		return err
	}
	resp, err := d.get(ctx, u.String(), referer)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("segment %s: bad status: %s", filepath.Base(u.Path), resp.Status)
	}

	var r io.Reader = resp.Body
	if d.limiter != nil {
		r = &rateLimitedReader{r: resp.Body, limiter: d.limiter, ctx: ctx}
	}
	_, err = io.Copy(w, r)
	return err
}
