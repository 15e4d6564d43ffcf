package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/bili"
	"github.com/bugmaschine/bilitool/pkg/dirs"
	"github.com/bugmaschine/bilitool/pkg/records"
	"github.com/bugmaschine/bilitool/pkg/utils"
	"github.com/spf13/cobra"
)

// partCID picks the cid of a 1-based part, the first part for 0.
func partCID(v *bili.VideoInfo, page int) (int64, error) {
	if page <= 1 {
		return v.CID, nil
	}
	if page > len(v.Pages) {
		return 0, fmt.Errorf("%s has %d parts, no P%d", v.BVID, len(v.Pages), page)
	}
	return v.Pages[page-1].CID, nil
}

func parseColor(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "#"), "0x")
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil || n > 0xffffff {
		return 0, fmt.Errorf("invalid color %q, want rrggbb", s)
	}
	return uint32(n), nil
}

func newDanmakuCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "danmaku",
		Short: "Read, like and send danmaku",
	}

	var page, segment, limit int
	list := &cobra.Command{
		Use:   "list BV|URL",
		Short: "List the danmaku of one six-minute segment of a video part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(false)
			if err != nil {
				return err
			}
			bvid, p, err := a.video(ctx, c, args[0])
			if err != nil {
				return err
			}
			if page > 0 {
				p = page
			}
			v, err := c.Video(ctx, bvid)
			if err != nil {
				return err
			}
			cid, err := partCID(v, p)
			if err != nil {
				return err
			}
			dms, err := c.Danmakus(ctx, cid, segment)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s cid %d segment %d: %d danmaku\n", bold(v.BVID), cid, max(segment, 1), len(dms))
			for i, d := range dms {
				if limit > 0 && i >= limit {
					break
				}
				fmt.Fprintf(out, "%8s %-6s %s %-10d %s\n", d.Progress.Truncate(time.Second), d.ModeName(), d.HexColor(), d.ID, d.Content)
			}
			return nil
		},
	}
	list.Flags().IntVarP(&page, "page", "p", 0, "Video part (default: the part in the URL, else 1)")
	list.Flags().IntVarP(&segment, "segment", "s", 1, "Six-minute segment, 1-based")
	list.Flags().IntVarP(&limit, "limit", "n", 0, "Print at most this many")

	like := &cobra.Command{
		Use:   "like DMID CID",
		Short: "Like a danmaku",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			c, err := a.client(true)
			if err != nil {
				return err
			}
			if err := c.LikeDanmaku(cmd.Context(), ids[0], ids[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s liked danmaku %d\n", okMark, ids[0])
			return nil
		},
	}

	var (
		at       time.Duration
		colorHex string
		size     int
		mode     int
		sendPage int
	)
	send := &cobra.Command{
		Use:   "send BV|URL TEXT",
		Short: "Send a danmaku",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			col, err := parseColor(colorHex)
			if err != nil {
				return err
			}
			c, err := a.client(true)
			if err != nil {
				return err
			}
			bvid, p, err := a.video(ctx, c, args[0])
			if err != nil {
				return err
			}
			if sendPage > 0 {
				p = sendPage
			}
			v, err := c.Video(ctx, bvid)
			if err != nil {
				return err
			}
			cid, err := partCID(v, p)
			if err != nil {
				return err
			}
			dmid, err := c.PostDanmaku(ctx, bvid, cid, args[1], at, bili.DanmakuStyle{Color: col, FontSize: size, Mode: mode})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sent, dmid %d (cid %d)\n", okMark, dmid, cid)
			return nil
		},
	}
	send.Flags().DurationVar(&at, "at", 0, "Position in the video")
	send.Flags().StringVar(&colorHex, "color", "ffffff", "Color as rrggbb")
	send.Flags().IntVar(&size, "size", 25, "Font size (18 small, 25 normal, 36 large)")
	send.Flags().IntVar(&mode, "mode", 1, "1 scrolling, 4 bottom, 5 top")
	send.Flags().IntVarP(&sendPage, "page", "p", 0, "Video part")

	cmd.AddCommand(list, like, send)
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	var (
		order string
		page  int
	)
	cmd := &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Search videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(false)
			if err != nil {
				return err
			}
			res, err := c.SearchVideos(cmd.Context(), strings.Join(args, " "), order, page)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "page %d/%d, %d results\n", res.Page, res.NumPages, res.Total)
			for i, r := range res.Results {
				fmt.Fprintf(out, "%3d. %s  %s\n", i+1, bold(r.BVID), r.Title)
				fmt.Fprintf(out, "     %s (uid %d)  %s  plays %s  favorites %s  %s\n",
					r.Author, r.MID, r.Duration, utils.FormatCount(r.Play), utils.FormatCount(r.Favorites), r.PubDate.Format(time.DateOnly))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&order, "order", "o", "totalrank", "Sort order: "+strings.Join(bili.SearchOrders, ", "))
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Result page")
	return cmd
}

func printReportTypes(out io.Writer, types []bili.ReportType) {
	for _, t := range types {
		fmt.Fprintf(out, "%4d  %s\n", t.TID, t.Name)
		for _, ctl := range t.Controls {
			req := ""
			if ctl.Required {
				req = " (required, pass --attach)"
			}
			fmt.Fprintf(out, "      %s%s\n", ctl.Title, req)
		}
	}
}

type reportFlags struct {
	tid    int64
	desc   string
	attach string
	image  string
	force  bool
}

func (r *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&r.tid, "tid", 0, "Report reason (see 'report types')")
	cmd.Flags().StringVar(&r.desc, "desc", "", fmt.Sprintf("Description, at least %d characters", bili.MinReportDescLen))
	cmd.Flags().StringVar(&r.attach, "attach", "", "Extra field value or image URL")
	cmd.Flags().StringVar(&r.image, "image", "", "Screenshot `FILE` to upload and attach")
	cmd.MarkFlagsMutuallyExclusive("attach", "image")
	cmd.Flags().BoolVar(&r.force, "force", false, "Report again even if the log already has this video")
	cmd.MarkFlagRequired("tid")
	cmd.MarkFlagRequired("desc")
}

// reporter submits reports and writes each one to the log.
type reporter struct {
	c      *bili.Client
	log    *records.Log
	flags  *reportFlags
	reason bili.ReportType
}

func newReporter(ctx context.Context, a *app, flags *reportFlags) (*reporter, error) {
	c, err := a.client(true)
	if err != nil {
		return nil, err
	}
	types, live := c.ReportTypesOrDefault(ctx)
	if !live {
		slog.Warn("Could not load report reasons, using the built-in list")
	}
	var reason *bili.ReportType
	for i := range types {
		if types[i].TID == flags.tid {
			reason = &types[i]
		}
	}
	if reason == nil {
		return nil, fmt.Errorf("unknown report reason %d, see 'report types'", flags.tid)
	}
	if reason.NeedsAttach() && flags.attach == "" {
		return nil, fmt.Errorf("reason %q needs --attach", reason.Name)
	}

	dir, err := dirs.GetSaveDirectory("", dirs.ReportsFolder)
	if err != nil {
		return nil, err
	}
	if flags.image != "" {
		kept, data, err := keepReportImage(flags.image, filepath.Join(dir, dirs.ReportImagesFolder), time.Now())
		if err != nil {
			return nil, err
		}
		slog.Info("Report image saved", "path", kept)
		u, err := c.UploadReportImage(ctx, data)
		if err != nil {
			return nil, err
		}
		flags.attach = u
	}
	return &reporter{c: c, log: records.Open(dir), flags: flags, reason: *reason}, nil
}

// keepReportImage copies an image into dir under a timestamped name and
// returns the new path and the image bytes.
func keepReportImage(src, dir string, now time.Time) (string, []byte, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read report image: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, now.Format("2006-01-02 15-04-05")+"_"+filepath.Base(src))
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", nil, fmt.Errorf("failed to save report image: %w", err)
	}
	return dst, data, nil
}

var errAlreadyReported = errors.New("already reported")

func (r *reporter) report(ctx context.Context, bvid string) error {
	if !r.flags.force {
		n, err := r.log.Count(bvid)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w %d time(s), pass --force to report again", errAlreadyReported, n)
		}
	}

	v, err := r.c.Video(ctx, bvid)
	if err != nil {
		return err
	}
	err = r.c.SubmitReport(ctx, bili.Report{AID: v.AID, TID: r.flags.tid, Desc: r.flags.desc, Attach: r.flags.attach})
	if err != nil {
		return err
	}
	rec := records.Report{
		BVID:      v.BVID,
		AID:       v.AID,
		Title:     v.Title,
		Author:    v.Owner.Name,
		PubDate:   v.PubDate,
		Reason:    r.reason.Name,
		Desc:      r.flags.desc,
		Attach:    r.flags.attach,
		IsImage:   strings.HasPrefix(r.flags.attach, "http"),
		Submitted: time.Now(),
	}
	if err := r.log.Append(rec); err != nil {
		slog.Warn("Report submitted but not logged", "bvid", bvid, "error", err)
	}
	slog.Info("Reported", "bvid", v.BVID, "title", v.Title, "reason", r.reason.Name)
	return nil
}

func newReportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report videos and keep a log of the reports",
	}

	types := &cobra.Command{
		Use:   "types",
		Short: "List the report reasons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(false)
			if err != nil {
				return err
			}
			list, live := c.ReportTypesOrDefault(cmd.Context())
			if !live {
				fmt.Fprintf(cmd.OutOrStdout(), "%s reasons endpoint unavailable, showing the built-in list\n", warnMark)
			}
			printReportTypes(cmd.OutOrStdout(), list)
			return nil
		},
	}

	var submitFlags reportFlags
	submit := &cobra.Command{
		Use:   "submit BV|URL",
		Short: "Report one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := newReporter(ctx, a, &submitFlags)
			if err != nil {
				return err
			}
			bvid, _, err := a.video(ctx, r.c, args[0])
			if err != nil {
				return err
			}
			if err := r.report(ctx, bvid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reported %s\n", okMark, bvid)
			return nil
		},
	}
	submitFlags.register(submit)

	var (
		batchReport reportFlags
		bf          batchFlags
	)
	batchCmd := &cobra.Command{
		Use:   "batch [BV|URL...]",
		Short: "Report every video of a BV list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := newReporter(ctx, a, &batchReport)
			if err != nil {
				return err
			}
			ids, err := a.videoList(ctx, r.c, args, bf.file)
			if err != nil {
				return err
			}
			return bf.run(cmd, "report", ids, 0, func(ctx context.Context, bvid string) error {
				err := r.report(ctx, bvid)
				if errors.Is(err, errAlreadyReported) {
					slog.Warn("Skipping", "bvid", bvid, "reason", err)
					return nil
				}
				return err
			})
		},
	}
	batchReport.register(batchCmd)
	bf.register(batchCmd)

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "List the reports filed so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := dirs.GetSaveDirectory("", dirs.ReportsFolder)
			if err != nil {
				return err
			}
			list, err := records.Open(dir).List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range list {
				fmt.Fprintf(out, "%s  %s  %s  %s (%s)\n", r.Submitted.Format(time.DateTime), bold(r.BVID), r.Reason, r.Title, r.Author)
			}
			fmt.Fprintf(out, "%d report(s)\n", len(list))
			return nil
		},
	}

	cmd.AddCommand(types, submit, batchCmd, logCmd)
	return cmd
}
