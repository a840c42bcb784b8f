package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/variantfactory/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "History database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()
		fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date.\n", d.Name())
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()
		if err := d.Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database %s reset.\n", d.Name())
		return nil
	},
}

// openDB opens and migrates the history DB, returning it with a cleanup func.
func openDB() (*db.DB, func(), error) {
	dsn := dbDSN
	if dsn == "" {
		path, err := db.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
		dsn = path
	}
	d, err := db.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
