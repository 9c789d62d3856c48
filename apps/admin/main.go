package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmkamba/kanisa/core"
	logsvc "github.com/tmkamba/kanisa/services/logger"
)

var (
	conf   *core.Config
	logger core.Logger
)

var rootCmd = &cobra.Command{
	Use:          "kanisa-admin",
	Short:        "Kanisa Evangelism administration commands",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(detectDropOffsCmd)
}

func main() {
	conf = core.NewConfig()
	logger = logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
