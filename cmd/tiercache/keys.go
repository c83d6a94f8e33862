package main

import (
	"context"

	"github.com/agentuity/tiercache/cache"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a key through the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, done, err := openEngine(cmd, nil)
		if err != nil {
			return err
		}
		defer done()
		val, ok := e.Get(cmd.Context(), args[0])
		if !ok {
			return errors.Newf("%s not found", args[0])
		}
		printValue(val)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a string value through the cache",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, done, err := openEngine(cmd, nil)
		if err != nil {
			return err
		}
		defer done()
		var opts []cache.SetOption
		if ttl, _ := cmd.Flags().GetDuration("ttl"); ttl > 0 {
			opts = append(opts, cache.WithTTL(ttl))
		}
		if tier, _ := cmd.Flags().GetString("tier"); tier != "" {
			opts = append(opts, cache.InTier(tier))
		}
		if err := e.Set(cmd.Context(), args[0], args[1], opts...); err != nil {
			return err
		}
		if err := e.Flush(cmd.Context()); err != nil {
			return err
		}
		if n := e.Stats().StoreErrors; n > 0 {
			showWarning("%s is cached in memory only, the backing store write failed", args[0])
			return nil
		}
		showSuccess("set %s", args[0])
		return nil
	},
}

var delCmd = &cobra.Command{
	Use:     "del <key>...",
	Aliases: []string{"rm"},
	Short:   "Delete keys from the cache and its backing store",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, done, err := openEngine(cmd, nil)
		if err != nil {
			return err
		}
		defer done()
		for _, key := range args {
			if err := e.Delete(cmd.Context(), key); err != nil {
				return err
			}
		}
		showSuccess("deleted %d key(s)", len(args))
		return nil
	},
}

func listKeys(ctx context.Context, lister cache.Lister, prefix string, fn func(key string)) error {
	opts := cache.ListOptions{Prefix: prefix}
	for {
		page, err := lister.List(ctx, opts)
		if err != nil {
			return err
		}
		for _, k := range page.Keys {
			fn(k)
		}
		if page.Done || (page.Cursor == opts.Cursor && len(page.Keys) == 0) {
			return nil
		}
		opts.Cursor = page.Cursor
	}
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List the keys of the backing store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, closer, err := c.OpenStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()
		lister, ok := store.(cache.Lister)
		if !ok {
			return errors.Newf("store type %q cannot list keys", c.Store.Type)
		}
		var prefix string
		if len(args) == 1 {
			prefix = args[0]
		}
		count := 0
		err = listKeys(cmd.Context(), lister, prefix, func(key string) {
			count++
			printValue(key)
		})
		if err != nil {
			return err
		}
		if count == 0 {
			showWarning("no keys")
		}
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every key of the backing store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := confirm("Delete every key of the backing store?", false)
			if err != nil {
				return err
			}
			if !ok {
				showWarning("not purged, pass --yes to skip the question")
				return nil
			}
		}
		e, _, done, err := openEngine(cmd, nil)
		if err != nil {
			return err
		}
		defer done()
		before := e.Stats().StoreErrors
		if err := e.Clear(cmd.Context(), cache.PurgeStore()); err != nil {
			return err
		}
		if e.Stats().StoreErrors > before {
			return errors.New("purge did not complete, see the log for the failed operation")
		}
		showSuccess("purged")
		return nil
	},
}

func init() {
	setCmd.Flags().Duration("ttl", 0, "time to live, defaults to the tier's TTL")
	setCmd.Flags().String("tier", "", "tier to write to, defaults to the configured default tier")
	purgeCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(getCmd, setCmd, delCmd, lsCmd, purgeCmd)
}
