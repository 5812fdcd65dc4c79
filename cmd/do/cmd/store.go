package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/refactorly/console/internal/clientstore"
	"github.com/refactorly/console/internal/db"
	"github.com/refactorly/console/internal/repository"
	"github.com/spf13/cobra"
)

const defaultConnection = "./data/console.db?_pragma=journal_mode(WAL)"

type storeFlags struct {
	driver     string
	connection string
}

func StoreCmd() *cobra.Command {
	flags := &storeFlags{}
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and migrate the durable client store",
	}
	storeCmd.PersistentFlags().StringVar(&flags.driver, "driver", envOr("STORE_DRIVER", "sqlite"), "store driver (sqlite or pgx)")
	storeCmd.PersistentFlags().StringVar(&flags.connection, "connection", envOr("STORE_CONNECTION", defaultConnection), "store connection string")

	storeCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(flags.driver, flags.connection)
			if err != nil {
				return err
			}
			defer database.Close()

			fmt.Println("Client store is up to date")
			return nil
		},
	})

	storeCmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Init(flags.driver, flags.connection)
			if err != nil {
				return err
			}
			defer database.Close()

			return db.MigrateDown(database.DB, flags.driver)
		},
	})

	storeCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored keys, with credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(flags, func(store *clientstore.Store) error {
				listed, err := store.List()
				if err != nil {
					return err
				}
				if len(listed) == 0 {
					fmt.Println("Client store is empty")
					return nil
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tVALUE\tUPDATED")
				for _, l := range listed {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Key, l.Value, l.UpdatedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	})

	storeCmd.AddCommand(&cobra.Command{
		Use:   "forget <key>",
		Short: "Delete one key, e.g. a stuck device_code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(flags, func(store *clientstore.Store) error {
				err := store.Forget(args[0])
				if err != nil {
					return err
				}
				fmt.Println("Forgot", args[0])
				return nil
			})
		},
	})

	return storeCmd
}

func withStore(flags *storeFlags, fn func(*clientstore.Store) error) error {
	database, err := db.Open(flags.driver, flags.connection)
	if err != nil {
		return err
	}
	defer database.Close()

	return fn(clientstore.New(repository.NewEntryRepository(database)))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
