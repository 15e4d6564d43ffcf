package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/bili"
	"github.com/bugmaschine/bilitool/pkg/dirs"
	"github.com/bugmaschine/bilitool/pkg/download"
	"github.com/bugmaschine/bilitool/pkg/ffmpeg"
	"github.com/spf13/cobra"
)

func printRoom(out io.Writer, r *bili.Room) {
	fmt.Fprintf(out, "%s  room %d", bold(r.Title), r.RoomID)
	if r.ShortID > 0 {
		fmt.Fprintf(out, " (short %d)", r.ShortID)
	}
	fmt.Fprintf(out, "  %s\n", bili.LiveStatusName(r.LiveStatus))
	if r.Uname != "" || r.UID > 0 {
		fmt.Fprintf(out, "  anchor:    %s (uid %d)\n", r.Uname, r.UID)
	}
	if r.ParentAreaName != "" || r.AreaName != "" {
		fmt.Fprintf(out, "  area:      %s / %s\n", r.ParentAreaName, r.AreaName)
	}
	if r.LiveTime != "" {
		fmt.Fprintf(out, "  live since %s\n", r.LiveTime)
	}
	if r.Online > 0 || r.Attention > 0 {
		fmt.Fprintf(out, "  online:    %d  followers: %d\n", r.Online, r.Attention)
	}
	if r.Tags != "" {
		fmt.Fprintf(out, "  tags:      %s\n", r.Tags)
	}
	if len(r.HotWords) > 0 {
		fmt.Fprintf(out, "  hot words: %s\n", strings.Join(r.HotWords, ", "))
	}
	if r.Hidden || r.Locked || r.Encrypted || r.Portrait {
		fmt.Fprintf(out, "  hidden %v  locked %v  encrypted %v  portrait %v\n", r.Hidden, r.Locked, r.Encrypted, r.Portrait)
	}
	if r.URL != "" {
		fmt.Fprintf(out, "  %s\n", r.URL)
	}
}

func printAnchor(out io.Writer, an *bili.Anchor) {
	fmt.Fprintf(out, "%s (uid %d)  room %d  anchor Lv%d\n", bold(an.Uname), an.UID, an.RoomID, an.Level)
	if an.Followers > 0 {
		fmt.Fprintf(out, "  followers: %d\n", an.Followers)
	}
	if an.MedalName != "" {
		fmt.Fprintf(out, "  medal:     %s\n", an.MedalName)
	}
	if an.Official != "" {
		fmt.Fprintf(out, "  official:  %s\n", an.Official)
	}
	if an.RoomNews != "" {
		fmt.Fprintf(out, "  news:      %s\n", an.RoomNews)
	}
}

// roomCommand is a live subcommand acting on one room.
func roomCommand(a *app, use, short string, run func(cmd *cobra.Command, c *bili.Client, room int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ROOM|URL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := a.room(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c, err := a.client(false)
			if err != nil {
				return err
			}
			return run(cmd, c, room)
		},
	}
}

func printChat(out io.Writer, m bili.LiveMessage) {
	medal := ""
	if m.Medal != "" {
		medal = "[" + m.Medal + "] "
	}
	fmt.Fprintf(out, "%s %s%s: %s\n", m.Time, medal, bold(m.Nickname), m.Text)
}

// writeChatRecord appends one message to a saved chat log.
func writeChatRecord(w io.Writer, m bili.LiveMessage) error {
	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n", m.Time)
	fmt.Fprintf(&b, "user: %s (uid %d)\n", m.Nickname, m.UID)
	if m.Medal != "" {
		fmt.Fprintf(&b, "medal: %s\n", m.Medal)
	}
	fmt.Fprintf(&b, "text: %s\n", m.Text)
	b.WriteString(strings.Repeat("-", 30) + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}

type chatWatch struct {
	enabled  bool
	interval time.Duration
	duration time.Duration
	save     bool
	dir      string
}

func (w *chatWatch) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&w.enabled, "watch", false, "Keep polling the chat and print new messages")
	cmd.Flags().DurationVar(&w.interval, "interval", 10*time.Second, "Time between polls in watch mode")
	cmd.Flags().DurationVar(&w.duration, "duration", 30*time.Minute, "How long to watch")
	cmd.Flags().BoolVar(&w.save, "save", false, "Also write the watched chat to a file")
	cmd.Flags().StringVarP(&w.dir, "output", "o", "", "Directory for --save (default ./live)")
}

func (w *chatWatch) run(cmd *cobra.Command, c *bili.Client, room int64) error {
	var save io.Writer
	if w.save {
		dir, err := dirs.GetSaveDirectory(w.dir, dirs.LiveFolder)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%d %s chat.txt", room, time.Now().Format("2006-01-02 15-04-05"))
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		defer f.Close()
		save = f
		defer fmt.Fprintf(cmd.OutOrStdout(), "%s chat saved to %s\n", okMark, f.Name())
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching room %d for %s, polling every %s\n", room, w.duration, w.interval)
	n, err := watchChat(cmd.Context(), c, room, w.interval, w.duration, cmd.OutOrStdout(), save)
	fmt.Fprintf(cmd.OutOrStdout(), "%d message(s) collected\n", n)
	return err
}

// watchChat prints new chat messages, and records them to save when it is
// not nil, until duration has passed or ctx is cancelled. Both count as a
// normal end.
func watchChat(ctx context.Context, c *bili.Client, room int64, interval, duration time.Duration, out, save io.Writer) (int, error) {
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	n := 0
	err := c.WatchLiveHistory(ctx, room, interval, func(m bili.LiveMessage) error {
		n++
		printChat(out, m)
		if save != nil {
			return writeChatRecord(save, m)
		}
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return n, nil
	}
	return n, err
}

func newLiveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Look up live rooms",
	}

	info := roomCommand(a, "info", "Show a room", func(cmd *cobra.Command, c *bili.Client, room int64) error {
		r, err := c.RoomInfo(cmd.Context(), room)
		if err != nil {
			return err
		}
		printRoom(cmd.OutOrStdout(), r)
		return nil
	})

	initCmd := roomCommand(a, "init", "Resolve a short room id and show the room flags", func(cmd *cobra.Command, c *bili.Client, room int64) error {
		r, err := c.RoomInit(cmd.Context(), room)
		if err != nil {
			return err
		}
		printRoom(cmd.OutOrStdout(), r)
		return nil
	})

	base := &cobra.Command{
		Use:   "base ROOM...",
		Short: "Show the base info of several rooms at once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			c, err := a.client(false)
			if err != nil {
				return err
			}
			rooms, err := c.RoomBaseInfo(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			for _, id := range slices.Sorted(maps.Keys(rooms)) {
				printRoom(cmd.OutOrStdout(), rooms[id])
			}
			return nil
		},
	}

	play := roomCommand(a, "play", "List the stream URLs of a room", func(cmd *cobra.Command, c *bili.Client, room int64) error {
		p, err := c.RoomPlayInfo(cmd.Context(), room)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "room %d  %s\n", p.RoomID, bili.LiveStatusName(p.LiveStatus))
		for _, qn := range slices.Sorted(maps.Keys(p.Qualities)) {
			fmt.Fprintf(out, "  qn %-5d %s\n", qn, p.Qualities[qn])
		}
		for _, s := range p.Streams {
			fmt.Fprintf(out, "%s %s %s qn %d\n", s.Protocol, s.Format, s.Codec, s.Qn)
			for _, u := range s.URLs {
				fmt.Fprintf(out, "  %s\n", u)
			}
		}
		return nil
	})

	var byUID bool
	anchor := &cobra.Command{
		Use:   "anchor ROOM|URL",
		Short: "Show the anchor of a room, or of a uid with --uid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(false)
			if err != nil {
				return err
			}
			var an *bili.Anchor
			if byUID {
				uid, err := a.mid(ctx, args[0])
				if err != nil {
					return err
				}
				an, err = c.AnchorInfo(ctx, uid)
				if err != nil {
					return err
				}
			} else {
				room, err := a.room(ctx, args[0])
				if err != nil {
					return err
				}
				an, err = c.AnchorInRoom(ctx, room)
				if err != nil {
					return err
				}
			}
			printAnchor(cmd.OutOrStdout(), an)
			return nil
		},
	}
	anchor.Flags().BoolVar(&byUID, "uid", false, "Treat the argument as a user id")

	var watch chatWatch
	history := roomCommand(a, "history", "Show the recent chat of a room", func(cmd *cobra.Command, c *bili.Client, room int64) error {
		if watch.enabled {
			return watch.run(cmd, c, room)
		}
		admin, viewers, err := c.LiveHistory(cmd.Context(), room)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range append(admin, viewers...) {
			printChat(out, m)
		}
		return nil
	})
	watch.register(history)

	var recordDir string
	record := roomCommand(a, "record", "Save what the room's HLS playlist currently holds", func(cmd *cobra.Command, c *bili.Client, room int64) error {
		dir, err := dirs.GetSaveDirectory(recordDir, dirs.LiveFolder)
		if err != nil {
			return err
		}
		dl := download.NewDownloader(download.Options{UserAgent: a.args.UserAgent, Output: cmd.ErrOrStderr()})
		path, err := download.RecordLive(cmd.Context(), c, dl, ffmpeg.New(a.dataDir), room, dir)
		dl.Wait()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s saved %s\n", okMark, path)
		return nil
	})
	record.Flags().StringVarP(&recordDir, "output", "o", "", "Output directory (default ./live)")

	status := &cobra.Command{
		Use:   "status MID|SPACE_URL...",
		Short: "Show whether users are live",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, in := range args {
				mid, err := a.mid(ctx, in)
				if err != nil {
					return err
				}
				r, err := c.UserLiveStatus(ctx, mid)
				if err != nil {
					fmt.Fprintf(out, "%s %d: %v\n", failMark, mid, err)
					continue
				}
				fmt.Fprintf(out, "%d  %-8s room %d  %s\n", mid, bili.LiveStatusName(r.LiveStatus), r.RoomID, r.Title)
			}
			return nil
		},
	}

	batchStatus := &cobra.Command{
		Use:   "batch-status UID...",
		Short: "Show the live status of many users in one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uids, err := parseIDs(args)
			if err != nil {
				return err
			}
			c, err := a.client(false)
			if err != nil {
				return err
			}
			rooms, err := c.StatusByUIDs(cmd.Context(), uids...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, uid := range uids {
				r, ok := rooms[uid]
				if !ok {
					fmt.Fprintf(out, "%d  no room\n", uid)
					continue
				}
				fmt.Fprintf(out, "%d  %-8s room %d  %s  %s\n", uid, bili.LiveStatusName(r.LiveStatus), r.RoomID, r.Uname, r.Title)
			}
			return nil
		},
	}

	cmd.AddCommand(info, initCmd, base, play, anchor, history, record, status, batchStatus)
	return cmd
}

func newIPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ip [ADDR]",
		Short: "Geolocate an address, or the caller's own address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(false)
			if err != nil {
				return err
			}
			var info *bili.IPInfo
			if len(args) == 1 {
				info, err = c.IPLookup(cmd.Context(), args[0])
			} else {
				info, err = c.IPZone(cmd.Context())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s %s %s  %s\n", bold(info.Addr), info.Country, info.Province, info.City, info.ISP)
			if info.Latitude != 0 || info.Longitude != 0 {
				fmt.Fprintf(out, "  %.4f, %.4f\n", info.Latitude, info.Longitude)
			}
			return nil
		},
	}
}
