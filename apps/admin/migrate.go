package main

import (
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/storage/database"
)

var gooseRunFunc = goose.Run // mockable

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|up-by-one|down|redo|status|version]",
	Short: "Provision the database and run goose migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return err
	}

	db, err := database.Open(conf)
	if err != nil {
		return err
	}
	defer db.Close()

	dir := filepath.Join(core.Getwd(), "migrations")
	return gooseRunFunc(command, db, dir)
}
