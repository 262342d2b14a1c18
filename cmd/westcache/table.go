package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/llx1993/westcache"
	"github.com/spf13/cobra"
)

func newTableCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect and modify flusher beans",
	}
	cmd.AddCommand(
		newTableListCmd(a),
		newTableAddCmd(a),
		newTableBumpCmd(a),
		newTableSetDirectCmd(a),
		newTableRemoveCmd(a),
		newTableMigrateCmd(a),
	)
	return cmd
}

func newTableListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flusher beans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			beans, err := table.QueryAllBeans(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CACHE KEY\tMATCH\tVERSION\tTYPE\tSPECS")
			for _, b := range beans {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", b.CacheKey, b.KeyMatch, b.ValueVersion, b.ValueType, b.Specs)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint %s\n", westcache.NewTable(beans).Fingerprint())
			return nil
		},
	}
}

func newTableAddCmd(a *app) *cobra.Command {
	var (
		match   string
		typ     string
		version int64
		specs   string
		value   string
	)
	cmd := &cobra.Command{
		Use:   "add <cache-key>",
		Short: "Add a flusher bean",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bean := westcache.FlusherBean{
				CacheKey:     args[0],
				KeyMatch:     westcache.KeyMatch(match),
				ValueVersion: version,
				ValueType:    westcache.ValueType(typ),
				Specs:        specs,
			}
			if err := validateBean(bean); err != nil {
				return err
			}
			var raw []byte
			if cmd.Flags().Changed("value") {
				raw = []byte(value)
			}

			table, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			if err := table.AddBean(cmd.Context(), bean, raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", bean.CacheKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", string(westcache.KeyMatchFull), "key match: full or prefix")
	cmd.Flags().StringVar(&typ, "type", string(westcache.ValueTypeNone), "value type: none or direct")
	cmd.Flags().Int64Var(&version, "version", 1, "initial value version")
	cmd.Flags().StringVar(&specs, "specs", "", "specs, e.g. readBy=redis;expireAfterWrite=1h")
	cmd.Flags().StringVar(&value, "value", "", "direct value stored in the table")
	return cmd
}

func validateBean(b westcache.FlusherBean) error {
	if b.CacheKey == "" {
		return errors.New("cache key is empty")
	}
	switch b.KeyMatch {
	case westcache.KeyMatchFull, westcache.KeyMatchPrefix:
	default:
		return errors.Newf("invalid key match %q", b.KeyMatch)
	}
	switch b.ValueType {
	case westcache.ValueTypeNone, westcache.ValueTypeDirect:
	default:
		return errors.Newf("invalid value type %q", b.ValueType)
	}
	if _, _, err := westcache.ParseSpecs(b.Specs).Duration(westcache.SpecExpireAfterWrite); err != nil {
		return err
	}
	return nil
}

func newTableBumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bump <cache-key>",
		Short: "Increase the value version so cached values are flushed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			if err := table.UpgradeVersion(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bumped %s\n", args[0])
			return nil
		},
	}
}

func newTableSetDirectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-direct <cache-key> <value>",
		Short: "Replace the direct value and bump the version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			if err := table.UpdateDirectValue(cmd.Context(), args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return nil
		},
	}
}

func newTableRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <cache-key>",
		Short: "Remove a flusher bean",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			if err := table.RemoveBean(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newTableMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the westcache_flusher table (mysql source only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			sqlTable, ok := table.(*westcache.SQLTable)
			if !ok {
				return errors.Newf("migrate needs the mysql source, got %q", a.cfg.Flusher.Source)
			}
			return sqlTable.AutoMigrate(cmd.Context())
		},
	}
}
