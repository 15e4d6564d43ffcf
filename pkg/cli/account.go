package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/bili"
	"github.com/bugmaschine/bilitool/pkg/chrome"
	"github.com/bugmaschine/bilitool/pkg/cookies"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func mask(v string) string {
	if len(v) <= 6 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", min(len(v)-4, 12))
}

func newCookiesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Inspect, import and capture the login cookies",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "List the loaded cookies with masked values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := a.loadCookies(false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(auth) == 0 {
				fmt.Fprintln(out, "no cookies loaded")
				return nil
			}
			fmt.Fprintf(out, "%s (%d cookies)\n", bold(a.cookiePath), len(auth))
			for _, name := range slices.Sorted(maps.Keys(auth)) {
				fmt.Fprintf(out, "  %-20s %s\n", name, mask(auth[name]))
			}
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Verify the required cookies and that the session is still logged in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			auth, err := a.loadCookies(false)
			if err != nil {
				return err
			}
			for _, name := range cookies.Required {
				mark := okMark
				if auth[name] == "" {
					mark = failMark
				}
				fmt.Fprintf(out, "%s %s\n", mark, name)
			}
			if err := auth.Validate(); err != nil {
				return err
			}

			c, err := a.client(true)
			if err != nil {
				return err
			}
			u, err := c.Nav(cmd.Context())
			if code, ok := bili.Code(err); ok && code == bili.CodeNotLoggedIn {
				fmt.Fprintf(out, "%s session expired, log in again\n", failMark)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s logged in as %s (uid %d)\n", okMark, bold(u.Name), u.MID)
			return nil
		},
	}

	imp := &cobra.Command{
		Use:   "import SRC",
		Short: "Convert a cookie file of any supported format into the saved jar; - reads a cookie string from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var set cookies.Set
			if args[0] == "-" {
				raw, err := readSecret(os.Stdin, cmd.ErrOrStderr(), "Cookie string: ")
				if err != nil {
					return err
				}
				set = cookies.ParseHeader(raw)
			} else {
				var err error
				if set, err = cookies.Load(args[0]); err != nil {
					return err
				}
			}
			if err := set.Validate(); err != nil {
				var missing *cookies.MissingCookiesError
				if !errors.As(err, &missing) {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", warnMark, err)
			}

			path := a.savePath()
			if err := set.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s saved %d cookies to %s\n", okMark, len(set), path)
			return nil
		},
	}

	var (
		browser string
		timeout time.Duration
	)
	login := &cobra.Command{
		Use:   "login",
		Short: "Log in through a browser window and save the session cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := chrome.NewManager(browser, a.args.UserAgent, a.args.Debug)
			if err != nil {
				return err
			}
			set, err := m.Login(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if err := set.Validate(); err != nil {
				return err
			}
			path := a.savePath()
			if err := set.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s logged in as uid %s, cookies saved to %s\n", okMark, set.UID(), path)
			return nil
		},
	}
	login.Flags().StringVar(&browser, "browser", "", "Chrome or Chromium executable (default: first one on PATH)")
	login.Flags().DurationVar(&timeout, "timeout", chrome.DefaultTimeout, "How long to wait for the login")

	cmd.AddCommand(show, check, imp, login)
	return cmd
}

func readSecret(in *os.File, prompt io.Writer, label string) (string, error) {
	if !term.IsTerminal(int(in.Fd())) {
		b, err := io.ReadAll(in)
		return strings.TrimSpace(string(b)), err
	}
	fmt.Fprint(prompt, label)
	b, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(prompt)
	return strings.TrimSpace(string(b)), err
}

func newUserCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user [MID|SPACE_URL]",
		Short: "Show the logged-in account, or the public profile of another user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				c, err := a.client(false)
				if err != nil {
					return err
				}
				mid, err := a.mid(ctx, args[0])
				if err != nil {
					return err
				}
				up, err := c.Space(ctx, mid)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (uid %d, Lv%d)\n", bold(up.Name), up.MID, up.Level)
				if up.Sign != "" {
					fmt.Fprintf(out, "  sign:      %s\n", up.Sign)
				}
				if up.OfficialTitle != "" {
					fmt.Fprintf(out, "  official:  %s\n", up.OfficialTitle)
				}
				if up.LiveRoomID > 0 {
					fmt.Fprintf(out, "  live room: %d\n", up.LiveRoomID)
				}
				if st, err := c.RelationStat(ctx, mid); err == nil {
					fmt.Fprintf(out, "  following: %d  followers: %d\n", st.Following, st.Follower)
				}
				return nil
			}

			c, err := a.client(true)
			if err != nil {
				return err
			}
			u, err := c.Nav(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s (uid %d)\n", bold(u.Name), u.MID)
			fmt.Fprintf(out, "  level:    %d (%d / %s exp)\n", u.Level, u.CurrentExp, u.NextExp)
			fmt.Fprintf(out, "  coins:    %.1f  B-coins: %.1f  moral: %d\n", u.Coins, u.BCoinBalance, u.Moral)
			vip := u.VIPName()
			if u.VIPActive && !u.VIPDue.IsZero() {
				vip += ", until " + u.VIPDue.Format(time.DateOnly)
			}
			fmt.Fprintf(out, "  vip:      %s\n", vip)
			fmt.Fprintf(out, "  verified: email %v, phone %v\n", u.EmailVerified, u.MobileVerified)
			if u.OfficialTitle != "" {
				fmt.Fprintf(out, "  official: %s\n", u.OfficialTitle)
			}
			if st, err := c.RelationStat(ctx, u.MID); err == nil {
				fmt.Fprintf(out, "  following: %d  followers: %d\n", st.Following, st.Follower)
			}
			if exp, err := c.CoinTodayExp(ctx); err == nil {
				fmt.Fprintf(out, "  coin exp today: %d / %d (%d coins left)\n", exp, bili.MaxDailyCoinExp, bili.RemainingCoins(exp))
			}
			return nil
		},
	}
}
