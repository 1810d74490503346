package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal/config"
	"github.com/urfave/cli/v3"
)

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "publish submission jobs to the SQS queue",
		ArgsUsage: "<job.json...>",
		Action:    enqueue,
	}
}

func enqueue(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return usageError(cmd, "expected at least one job file")
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if a.cfg.Queue.Backend != config.QueueSQS {
		return usageError(cmd, "the %s queue lives inside serve, pass job files to serve instead", a.cfg.Queue.Backend)
	}
	q, err := a.openQueue(ctx)
	if err != nil {
		return err
	}
	for _, path := range cmd.Args().Slice() {
		job, err := readJob(path)
		if err != nil {
			return err
		}
		if err := q.Publish(ctx, job); err != nil {
			return err
		}
		fmt.Println(job.SubmissionID)
	}
	return nil
}

// readJob loads a job from a JSON file, assigning a submission id when
// the file has none.
func readJob(path string) (api.Job, error) {
	var job api.Job
	data, err := os.ReadFile(path)
	if err != nil {
		return job, fmt.Errorf("failed to read job: %w", err)
	}
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("failed to parse job %s: %w", path, err)
	}
	if job.SubmissionID == "" {
		job.SubmissionID = uuid.NewString()
	}
	return job, nil
}
