package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf *core.Config
	db   *sql.DB
	svc  *drowsiness.Service
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                  - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  clearscores -video ID -student UID      - delete the drowsiness scores of a student for a video")
	fmt.Fprintln(cli.out, "  reshard -session ID                     - rebuild the shard blob of a session from its landmark tables")
	fmt.Fprintln(cli.out, "  windows -dir PATH                       - count the dataset windows of every session under PATH")
	fmt.Fprintln(cli.out, "  token -student UID                      - issue a student token; the secret key is prompted if unset")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	clearScoresCmd := cli.newFlagSet("clearscores")
	clearScoresVideo := clearScoresCmd.Int("video", 0, "The video ID.")
	clearScoresStudent := clearScoresCmd.String("student", "", "The student UID.")

	reshardCmd := cli.newFlagSet("reshard")
	reshardSession := reshardCmd.String("session", "", "The session ID.")

	windowsCmd := cli.newFlagSet("windows")
	windowsDir := windowsCmd.String("dir", "", "The data directory. Defaults to the configured one.")

	tokenCmd := cli.newFlagSet("token")
	tokenStudent := tokenCmd.String("student", "", "The student UID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	case "clearscores":
		if err := clearScoresCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *clearScoresVideo < 1 || *clearScoresStudent == "" {
			clearScoresCmd.Usage()
			return errHelp
		}
		return cli.clearScores(*clearScoresVideo, *clearScoresStudent)

	case "reshard":
		if err := reshardCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *reshardSession == "" {
			reshardCmd.Usage()
			return errHelp
		}
		return cli.reshard(*reshardSession)

	case "windows":
		if err := windowsCmd.Parse(args[2:]); err != nil {
			return err
		}
		dir := *windowsDir
		if dir == "" {
			dir = cli.conf.Drowsiness.DataDir
		}
		return cli.windows(dir)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenStudent == "" {
			tokenCmd.Usage()
			return errHelp
		}
		secret := cli.conf.SecretKey
		if secret == "" {
			fmt.Fprint(cli.out, "Enter secret key:")
			key, err := readPasswordFunc(int(syscall.Stdin))
			fmt.Fprintln(cli.out)
			if err != nil {
				return err
			}
			if len(key) == 0 {
				tokenCmd.Usage()
				return errHelp
			}
			secret = string(key)
		}
		return cli.token(*tokenStudent, secret)

	default:
		cli.printUsage()
		return errHelp
	}
}
