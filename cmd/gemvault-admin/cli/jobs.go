package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/gemvault/gemvault/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, payload []byte) (*asynq.TaskInfo, error) {
	task, err := jobs.NewTask(name, payload)
	if err != nil {
		return nil, err
	}
	return c.client.Enqueue(ctx, task)
}

// Stats reports the worker queues.
func (c *JobsCLI) Stats() ([]jobs.QueueStats, error) {
	return jobs.CollectStats(c.inspector)
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	trigger := &cobra.Command{
		Use:       "trigger <task-type>",
		Short:     "Enqueue a background job now",
		Example:   "  gemvault-admin jobs trigger billing:overdue_sweep --payload '{\"as_of\":\"2024-04-01\"}'",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskTypes(),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, _ := cmd.Flags().GetString("payload")
			c := NewJobsCLI(redisAddr(cmd))
			defer c.Close()
			info, err := c.Trigger(cmd.Context(), args[0], []byte(payload))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().String("payload", "", "JSON payload for the task")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth per worker queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewJobsCLI(redisAddr(cmd))
			defer c.Close()
			rows, err := c.Stats()
			if err != nil {
				return err
			}
			return writeQueueStats(cmd, rows)
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}

func writeQueueStats(cmd *cobra.Command, rows []jobs.QueueStats) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tFAILED TODAY")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", r.Queue, r.Pending, r.Active, r.Scheduled, r.Retry, r.Failed)
	}
	return tw.Flush()
}

func redisAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("redis-addr")
	return addr
}
