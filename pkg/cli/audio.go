package cli

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/dirs"
	"github.com/bugmaschine/bilitool/pkg/download"
	"github.com/bugmaschine/bilitool/pkg/ffmpeg"
	"github.com/bugmaschine/bilitool/pkg/wbi"
	"github.com/spf13/cobra"
)

type audioFlags struct {
	file         string
	output       string
	native       bool
	mp3          bool
	quality      int
	keep         bool
	rate         string
	skipExisting bool
	ytdlp        string
}

func newAudioCommand(a *app) *cobra.Command {
	var af audioFlags
	cmd := &cobra.Command{
		Use:   "audio [BV|URL...]",
		Short: "Download the audio track of videos",
		Long: "Download the audio track of videos through yt-dlp, or with --native straight from the DASH audio stream. " +
			"Without arguments the BV list file is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			limit, err := ParseRateLimit(af.rate)
			if err != nil {
				return err
			}
			if af.mp3 && (af.quality < 0 || af.quality > 9) {
				return fmt.Errorf("--quality must be within 0..9")
			}

			c, err := a.client(false)
			if err != nil {
				return err
			}
			if c.Cookies().Validate() != nil {
				slog.Warn("Not logged in, audio quality may be limited")
			}

			type item struct {
				bvid string
				page int
			}
			var items []item
			if len(args) == 0 {
				ids, err := a.videoList(ctx, c, nil, af.file)
				if err != nil {
					return err
				}
				for _, id := range ids {
					items = append(items, item{bvid: id})
				}
			}
			for _, in := range args {
				bvid, page, err := a.video(ctx, c, in)
				if err != nil {
					return err
				}
				items = append(items, item{bvid, page})
			}

			dir, err := dirs.GetSaveDirectory(af.output, dirs.AudioFolder)
			if err != nil {
				return err
			}
			dl := download.NewDownloader(download.Options{
				UserAgent: a.args.UserAgent,
				LimitRate: limit,
				Output:    cmd.ErrOrStderr(),
			})
			defer dl.Wait()

			var ff *ffmpeg.Ffmpeg
			if af.mp3 {
				ff = ffmpeg.New(a.dataDir)
				slog.Info("Checking for FFmpeg...")
				path, err := ff.AutoDownload(ctx, dl)
				if err != nil {
					return fmt.Errorf("mp3 conversion needs ffmpeg: %w", err)
				}
				slog.Debug("Using FFmpeg", "path", path)
			}

			var y *download.YtDlp
			if !af.native {
				path := af.ytdlp
				if path == "" {
					if path, err = download.FindYtDlp(); err != nil {
						return fmt.Errorf("%w, install it or pass --native", err)
					}
				}
				y = download.NewYtDlp(path, c.Cookies(), dl.Progress())
				y.UserAgent = a.args.UserAgent
			}

			job, err := download.NewAudioJob(download.AudioOptions{
				Dir:          dir,
				Native:       af.native,
				MP3:          af.mp3,
				Quality:      af.quality,
				Keep:         af.keep,
				SkipExisting: af.skipExisting,
			}, c, dl, y, ff)
			if err != nil {
				return err
			}

			var failed []string
			for _, it := range items {
				path, err := job.Run(ctx, it.bvid, it.page)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					slog.Error("Audio download failed", "bvid", it.bvid, "error", err)
					failed = append(failed, it.bvid)
					continue
				}
				if path != "" {
					slog.Info("Saved", "file", path)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d downloads failed: %s", len(failed), len(items), strings.Join(failed, ", "))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&af.file, "file", "f", dirs.DefaultBVList, "BV list file, used when no videos are given")
	f.StringVarP(&af.output, "output", "o", "", "Output directory (default ./audio)")
	f.BoolVar(&af.native, "native", false, "Download the DASH audio stream directly instead of using yt-dlp")
	f.BoolVar(&af.mp3, "mp3", false, "Convert to mp3 with ffmpeg")
	f.IntVarP(&af.quality, "quality", "q", 0, "mp3 VBR quality, 0 best to 9 worst")
	f.BoolVar(&af.keep, "keep", false, "Keep the original file after converting")
	f.StringVarP(&af.rate, "rate", "r", "inf", "Maximum download rate in native mode (e.g. 2MiB)")
	f.BoolVar(&af.skipExisting, "skip-existing", false, "Skip videos whose audio is already in the output directory")
	f.StringVar(&af.ytdlp, "yt-dlp", "", "yt-dlp executable (default: from PATH)")
	return cmd
}

// parseParams reads key=value pairs.
func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", kv)
		}
		params[k] = v
	}
	return params, nil
}

func newWbiCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wbi",
		Short: "Inspect the WBI request signing",
	}

	sign := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Sign query parameters and print the signed query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args)
			if err != nil {
				return err
			}
			c, err := a.client(false)
			if err != nil {
				return err
			}
			signed, err := c.Signer().Sign(cmd.Context(), params, c.Cookies())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, ok := signed[wbi.ParamWRID]; !ok {
				fmt.Fprintf(out, "%s keys unavailable, parameters left unsigned\n", warnMark)
			}
			for _, k := range slices.Sorted(maps.Keys(signed)) {
				fmt.Fprintf(out, "%s=%v\n", k, signed[k])
			}
			if age, ok := wbi.Age(wbi.FileStore{Path: dirs.WbiCachePath(a.dataDir)}, time.Now()); ok {
				slog.Debug("Key cache", "age", age.Truncate(time.Second), "valid_for", (wbi.KeyValidity - age).Truncate(time.Second))
			}
			return nil
		},
	}

	cmd.AddCommand(sign)
	return cmd
}
