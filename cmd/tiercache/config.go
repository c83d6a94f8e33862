package main

import (
	"os"
	"strconv"

	"github.com/agentuity/tiercache/config"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check config files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn := config.DefaultPath
		if len(args) == 1 {
			fn = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(fn); err == nil && !force {
			return errors.Newf("%s already exists, use --force to overwrite", fn)
		}
		of, err := os.Create(fn)
		if err != nil {
			return err
		}
		defer of.Close()
		if err := config.Default().Write(of); err != nil {
			return err
		}
		if err := of.Close(); err != nil {
			return err
		}
		showSuccess("wrote %s", fn)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and show the tiers in probe order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		e, closer, err := c.NewEngine(cmd.Context(), c.Logger(), nil)
		if err != nil {
			return err
		}
		defer closer()
		rows := make([][]string, 0, len(e.Tiers()))
		for _, t := range e.Tiers() {
			rows = append(rows, []string{
				t.Name,
				strconv.Itoa(t.MaxSize),
				config.Duration(t.DefaultTTL).String(),
				strconv.Itoa(t.Weight),
				strconv.FormatBool(!t.Volatile),
			})
		}
		showTable([]string{"Tier", "Max Size", "TTL", "Weight", "Persisted"}, rows)
		store := c.Store.Type
		if store == "" {
			store = "none"
		}
		showSuccess("config ok, backing store: %s", store)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
