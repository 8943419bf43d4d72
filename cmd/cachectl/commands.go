package main

import (
	"fmt"
	"io"
	"time"

	"github.com/agentuity/go-doccache/cache"
	"github.com/agentuity/go-doccache/store"
	"github.com/agentuity/go-doccache/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

var errNotFound = errors.New("key not found")

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY and renew its sliding expiration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, done, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			found, val, err := c.GetContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return errors.Wrapf(errNotFound, "%s", args[0])
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(val); err != nil {
				return err
			}
			if tui.HasTTY {
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE under KEY. A VALUE of - reads from stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := entryOptions(cmd)
			if err != nil {
				return err
			}
			value := []byte(args[1])
			if args[1] == "-" {
				if value, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return errors.Wrap(err, "error reading value from stdin")
				}
			}
			c, _, done, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := c.SetContext(cmd.Context(), args[0], value, opts); err != nil {
				return err
			}
			tui.ShowSuccess(cmd.ErrOrStderr(), "stored %s (%d bytes)", args[0], len(value))
			return nil
		},
	}
	cmd.Flags().String("sliding", "", "sliding expiration, for example 10m or 1d")
	cmd.Flags().String("ttl", "", "absolute expiration relative to now, for example 2h")
	cmd.Flags().String("absolute", "", "absolute expiration as an RFC 3339 time")
	return cmd
}

func entryOptions(cmd *cobra.Command) (cache.EntryOptions, error) {
	var opts cache.EntryOptions
	sliding, _ := cmd.Flags().GetString("sliding")
	ttl, _ := cmd.Flags().GetString("ttl")
	absolute, _ := cmd.Flags().GetString("absolute")
	if ttl != "" && absolute != "" {
		return opts, errors.New("only one of --ttl and --absolute can be set")
	}
	if sliding != "" {
		d, err := str2duration.ParseDuration(sliding)
		if err != nil {
			return opts, errors.Wrap(err, "invalid --sliding")
		}
		opts.SlidingExpiration = &d
	}
	if ttl != "" {
		d, err := str2duration.ParseDuration(ttl)
		if err != nil {
			return opts, errors.Wrap(err, "invalid --ttl")
		}
		opts.AbsoluteExpirationRelativeToNow = &d
	}
	if absolute != "" {
		t, err := time.Parse(time.RFC3339Nano, absolute)
		if err != nil {
			return opts, errors.Wrap(err, "invalid --absolute")
		}
		opts.AbsoluteExpiration = &t
	}
	return opts, nil
}

func newRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh KEY",
		Short: "Renew the sliding expiration of KEY without reading its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, done, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			return c.RefreshContext(cmd.Context(), args[0])
		},
	}
}

func newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove KEY",
		Short: "Delete KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, log, done, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			if force, _ := cmd.Flags().GetBool("force"); !force {
				if !tui.Ask(log, fmt.Sprintf("Remove %s?", args[0]), true) {
					tui.ShowWarning(cmd.ErrOrStderr(), "cancelled")
					return nil
				}
			}
			if err := c.RemoveContext(cmd.Context(), args[0]); err != nil {
				return err
			}
			tui.ShowSuccess(cmd.ErrOrStderr(), "removed %s", args[0])
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "do not ask for confirmation")
	return cmd
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect KEY",
		Short: "Show the expiration metadata of KEY without renewing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, done, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			entry, err := c.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry == nil {
				return errors.Wrapf(errNotFound, "%s", args[0])
			}
			tui.Table(cmd.OutOrStdout(), []string{"Field", "Value"}, inspectRows(entry, time.Now()))
			return nil
		},
	}
}

func inspectRows(e *store.Entry, now time.Time) [][]string {
	formatTime := func(t *time.Time) string {
		if t == nil {
			return tui.Muted("none")
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	sliding := tui.Muted("none")
	if e.SlidingExpiration != nil {
		sliding = str2duration.String(*e.SlidingExpiration)
	}
	var state string
	switch {
	case e.ExpiresAt == nil:
		state = "never expires"
	case !e.ExpiresAt.After(now):
		state = tui.Warning("expired " + str2duration.String(now.Sub(*e.ExpiresAt).Truncate(time.Second)) + " ago")
	default:
		state = "expires in " + str2duration.String(e.ExpiresAt.Sub(now).Truncate(time.Second))
	}
	return [][]string{
		{"key", tui.MaxWidth(e.Key, 64)},
		{"expires at", formatTime(e.ExpiresAt)},
		{"absolute expiration", formatTime(e.AbsoluteExpiration)},
		{"sliding expiration", sliding},
		{"state", state},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete every expired entry now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, done, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			var removed int64
			tui.ShowSpinner("Sweeping expired entries", func() {
				removed, err = c.Sweep(cmd.Context())
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", removed)
			if removed > 0 {
				tui.ShowSuccess(cmd.ErrOrStderr(), "removed %d expired %s", removed, plural(removed, "entry", "entries"))
			}
			return nil
		},
	}
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func isNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
