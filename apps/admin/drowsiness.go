package main

import (
	"context"
	"fmt"

	"github.com/trezcool/drowsiness/core/dataset"
)

func (cli *commandLine) clearScores(videoID int, studentUID string) error {
	n, err := cli.svc.ClearScores(context.Background(), videoID, studentUID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %d scores of student %q for video %d\n", n, studentUID, videoID)
	return nil
}

func (cli *commandLine) reshard(sessionID string) error {
	set, path, err := cli.svc.Reshard(sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d frames, %d shards written to %s\n", set.Frames, len(set.Shards), path)
	return nil
}

// windows reports how many model windows each stored session yields.
func (cli *commandLine) windows(dir string) error {
	col, err := dataset.LoadDir(dir, cli.conf.Drowsiness.SeqLen, cli.conf.Drowsiness.Stride)
	if err != nil {
		return err
	}
	for _, id := range col.Sessions() {
		seq, _ := col.Session(id)
		fmt.Fprintf(cli.out, "%s\t%d shards\t%d windows\n", id, len(seq.ShardSet().Shards), seq.Len())
	}
	fmt.Fprintf(cli.out, "total: %d sessions, %d windows\n", len(col.Sessions()), col.Len())
	return nil
}
