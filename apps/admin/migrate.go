package main

import (
	"context"

	"github.com/trezcool/drowsiness/storage/database"
)

var gooseRunFunc = database.RunMigration // mockable

func (cli *commandLine) migrate(command string, args ...string) error {
	return gooseRunFunc(context.Background(), cli.db, command, args...)
}
