package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/batch"
	"github.com/bugmaschine/bilitool/pkg/bili"
	"github.com/bugmaschine/bilitool/pkg/dirs"
	"github.com/bugmaschine/bilitool/pkg/utils"
	"github.com/spf13/cobra"
)

func printVideo(out io.Writer, v *bili.VideoInfo) {
	fmt.Fprintf(out, "%s  %s\n", bold(v.BVID), v.Title)
	fmt.Fprintf(out, "  av%d by %s (uid %d), %s, %s\n", v.AID, v.Owner.Name, v.Owner.MID, v.PubDate.Format(time.DateTime), v.Duration)
	s := v.Stat
	fmt.Fprintf(out, "  views %s  likes %s  coins %s  favorites %s  shares %s  danmaku %s  replies %s\n",
		utils.FormatCount(s.View), utils.FormatCount(s.Like), utils.FormatCount(s.Coin), utils.FormatCount(s.Favorite),
		utils.FormatCount(s.Share), utils.FormatCount(s.Danmaku), utils.FormatCount(s.Reply))
	if len(v.Pages) > 1 {
		for _, p := range v.Pages {
			fmt.Fprintf(out, "  P%-3d cid %-12d %s  %s\n", p.Page, p.CID, p.Duration, p.Part)
		}
	}
}

func newVideoCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Look up videos",
	}

	info := &cobra.Command{
		Use:   "info BV|URL...",
		Short: "Show title, uploader and counters of videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(false)
			if err != nil {
				return err
			}
			for _, in := range args {
				bvid, _, err := a.video(cmd.Context(), c, in)
				if err != nil {
					return err
				}
				v, err := c.Video(cmd.Context(), bvid)
				if err != nil {
					return err
				}
				printVideo(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}

	av := &cobra.Command{
		Use:   "av BV",
		Short: "Convert a BV id to its av number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(false)
			if err != nil {
				return err
			}
			bvid, _, err := a.video(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			aid, err := c.BVToAV(cmd.Context(), bvid)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> av%d\n", bvid, aid)
			return nil
		},
	}

	bvids := &cobra.Command{
		Use:   "bvids [FILE]",
		Short: "List the BV ids found in a BV list file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := dirs.DefaultBVList
			if len(args) == 1 {
				file = args[0]
			}
			ids, err := utils.ReadBVListFile(file)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			slog.Info("Read BV list", "file", file, "count", len(ids))
			return nil
		},
	}

	var (
		ps, pn int
		save   bool
	)
	comments := &cobra.Command{
		Use:   "comments BV",
		Short: "Show the hot comments of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(false)
			if err != nil {
				return err
			}
			bvid, _, err := a.video(ctx, c, args[0])
			if err != nil {
				return err
			}
			v, err := c.Video(ctx, bvid)
			if err != nil {
				return err
			}
			total, err := c.CommentCount(ctx, v.AID)
			if err != nil {
				return err
			}
			hot, err := c.HotReplies(ctx, v.AID, ps, pn)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if save {
				dir, err := dirs.GetSaveDirectory("", dirs.CommentsFolder)
				if err != nil {
					return err
				}
				name := filepath.Join(dir, fmt.Sprintf("%s_%s_p%d.txt", utils.CleanFileName(v.Title), v.BVID, pn))
				f, err := os.Create(name)
				if err != nil {
					return err
				}
				defer f.Close()
				out = io.MultiWriter(out, f)
				slog.Info("Saving comments", "file", name)
			}
			fmt.Fprintf(out, "%s  %s: %d comments, %d hot\n", v.BVID, v.Title, total, hot.Total)
			for i, r := range hot.Replies {
				fmt.Fprintf(out, "%3d. %s (Lv%d, uid %d) %s  likes %d  replies %d\n", (pn-1)*ps+i+1, r.Uname, r.Level, r.MID, r.CTime.Format(time.DateTime), r.Like, r.Replies)
				for _, line := range strings.Split(r.Message, "\n") {
					fmt.Fprintf(out, "     %s\n", line)
				}
			}
			return nil
		},
	}
	comments.Flags().IntVar(&ps, "ps", 20, "Comments per page")
	comments.Flags().IntVar(&pn, "pn", 1, "Page number")
	comments.Flags().BoolVar(&save, "save", false, "Also write the comments to a file under ./comments")

	cmd.AddCommand(info, av, bvids, comments)
	return cmd
}

type batchFlags struct {
	file  string
	delay time.Duration
	yes   bool
}

func (b *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&b.file, "file", "f", dirs.DefaultBVList, "BV list file, used when no videos are given")
	cmd.Flags().DurationVar(&b.delay, "delay", batch.DefaultDelay, "Pause between requests")
	cmd.Flags().BoolVarP(&b.yes, "yes", "y", false, "Do not ask for confirmation")
}

// run confirms and then acts on every id, stopping at the first failure.
func (b *batchFlags) run(cmd *cobra.Command, name string, ids []string, limit int, action batch.Action) error {
	out := cmd.OutOrStdout()
	n := len(ids)
	if limit > 0 && limit < n {
		n = limit
	}
	if !b.yes {
		ok, err := confirm(os.Stdin, out, fmt.Sprintf("%s %d video(s)?", name, n))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "aborted")
			return nil
		}
	}

	res, err := batch.Run(cmd.Context(), ids, batch.Options{
		Delay:  b.delay,
		Limit:  limit,
		Name:   name,
		Output: cmd.ErrOrStderr(),
	}, action)
	mark := okMark
	if err != nil {
		mark = failMark
	}
	fmt.Fprintf(out, "%s %s: %s\n", mark, name, res)
	return err
}

func newLikeCommand(a *app) *cobra.Command {
	var bf batchFlags
	cmd := &cobra.Command{
		Use:   "like [BV|URL...]",
		Short: "Like videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ids, err := a.videoList(cmd.Context(), c, args, bf.file)
			if err != nil {
				return err
			}
			return bf.run(cmd, "like", ids, 0, func(ctx context.Context, bvid string) error {
				if err := c.Like(ctx, bvid); err != nil {
					return err
				}
				slog.Info("Liked", "bvid", bvid)
				return nil
			})
		},
	}
	bf.register(cmd)
	return cmd
}

func newCoinCommand(a *app) *cobra.Command {
	var (
		bf       batchFlags
		multiply int
		noLike   bool
	)
	cmd := &cobra.Command{
		Use:   "coin [BV|URL...]",
		Short: "Give coins to videos, up to today's remaining coin experience",
		RunE: func(cmd *cobra.Command, args []string) error {
			if multiply != 1 && multiply != 2 {
				return fmt.Errorf("--multiply must be 1 or 2")
			}
			ctx := cmd.Context()
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ids, err := a.videoList(ctx, c, args, bf.file)
			if err != nil {
				return err
			}

			exp, err := c.CoinTodayExp(ctx)
			if err != nil {
				return err
			}
			left := bili.RemainingCoins(exp) / multiply
			if left == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s daily coin experience already reached (%d/%d)\n", warnMark, exp, bili.MaxDailyCoinExp)
				return nil
			}
			slog.Info("Coin budget", "today_exp", exp, "videos", left)

			return bf.run(cmd, "coin", ids, left, func(ctx context.Context, bvid string) error {
				liked, err := c.Coin(ctx, bvid, multiply, !noLike)
				if err != nil {
					return err
				}
				slog.Info("Coined", "bvid", bvid, "coins", multiply, "liked", liked)
				return nil
			})
		},
	}
	bf.register(cmd)
	cmd.Flags().IntVar(&multiply, "multiply", 1, "Coins per video (1 or 2)")
	cmd.Flags().BoolVar(&noLike, "no-like", false, "Do not like the video alongside the coin")
	return cmd
}

func newFollowCommand(a *app) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "follow MID|SPACE_URL",
		Short: "Follow a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(true)
			if err != nil {
				return err
			}
			mid, err := a.mid(ctx, args[0])
			if err != nil {
				return err
			}
			rel, err := c.Relation(ctx, mid)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case undo && !rel.Following():
				fmt.Fprintf(out, "%s not following %d\n", warnMark, mid)
				return nil
			case undo:
				if err := c.Unfollow(ctx, mid); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s unfollowed %d\n", okMark, mid)
			case rel.Following():
				fmt.Fprintf(out, "%s already following %d\n", warnMark, mid)
			default:
				if err := c.Follow(ctx, mid); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s followed %d\n", okMark, mid)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Unfollow instead")
	return cmd
}

func newFanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fan",
		Short: "Join an uploader's old fan plan",
	}

	var message string
	join := &cobra.Command{
		Use:   "join MID|SPACE_URL",
		Short: "Join the plan, optionally leaving a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(true)
			if err != nil {
				return err
			}
			mid, err := a.mid(ctx, args[0])
			if err != nil {
				return err
			}
			contract, err := c.JoinOldFan(ctx, mid)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s joined the old fan plan of %d\n", okMark, mid)
			if !contract.AllowMessage {
				return nil
			}
			if message == "" {
				fmt.Fprintf(out, "  %s: %s\n", contract.InputTitle, contract.InputText)
				return nil
			}
			toast, err := c.SendOldFanMessage(ctx, mid, message)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", okMark, toast)
			return nil
		},
	}
	join.Flags().StringVarP(&message, "message", "m", "", "Message for the uploader")

	msg := &cobra.Command{
		Use:   "message MID|SPACE_URL TEXT",
		Short: "Leave the old fan message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(true)
			if err != nil {
				return err
			}
			mid, err := a.mid(ctx, args[0])
			if err != nil {
				return err
			}
			toast, err := c.SendOldFanMessage(ctx, mid, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okMark, toast)
			return nil
		},
	}

	cmd.AddCommand(join, msg)
	return cmd
}
