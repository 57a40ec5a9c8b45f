// fightlensctl drives an analysis server from the command line: submit
// footage, wait for the verdict, pull reports and ask follow-up questions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fightlens/fightlens/internal/client"
	"github.com/fightlens/fightlens/internal/job"
)

var serverURL string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fightlensctl",
		Short: "fightlensctl talks to a running fight-detection server.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "base URL of the analysis server")
	cmd.AddCommand(newUploadCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newChatCommand())
	return cmd
}

func defaultServer() string {
	if v := os.Getenv("FIGHTLENS_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func newUploadCommand() *cobra.Command {
	params := job.DefaultParams()
	var noWait bool

	cmd := &cobra.Command{
		Use:          "upload VIDEO",
		Short:        "Upload a video and wait for the analysis to finish.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			c.OnPoll = func(_ client.StatusInfo, elapsed time.Duration) {
				fmt.Printf("still processing after %s\n", elapsed.Round(time.Second))
			}

			jobID, err := c.Submit(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			fmt.Printf("job %s submitted\n", jobID)

			if noWait {
				return nil
			}

			poller := client.NewPoller(c)
			results, err := poller.Start(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(interrupt)

			select {
			case res := <-results:
				if res.Err != nil {
					return res.Err
				}
				fmt.Printf("completed in %.1fs\n", res.Outcome.ProcessingTime)
				if err := printSegments(cmd.Context(), c, jobID); err != nil {
					return err
				}
				fmt.Printf("results: %s\n", res.Outcome.ResultsURL)
				return nil
			case <-interrupt:
				poller.Stop()
				return fmt.Errorf("interrupted; job %s keeps running on the server", jobID)
			}
		},
	}

	cmd.Flags().IntVar(&params.SequenceLength, "sequence-length", params.SequenceLength, "frames per analysis window")
	cmd.Flags().Float64Var(&params.Threshold, "threshold", params.Threshold, "fight probability threshold")
	cmd.Flags().IntVar(&params.OutputFrameRate, "fps", params.OutputFrameRate, "output frame rate")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "submit and exit without polling")
	return cmd
}

func printSegments(ctx context.Context, c *client.Client, jobID string) error {
	results, err := c.Results(ctx, jobID)
	if err != nil {
		return err
	}
	if results.Results == nil {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "WINDOW\tFRAMES\tTIME\tPROBABILITY\tFIGHT")
	for i, s := range results.Results.Segments {
		fmt.Fprintf(w, "%d\t%d-%d\t%s-%s\t%.2f\t%v\n",
			i+1, s.StartFrame, s.EndFrame, s.StartTime, s.EndTime, s.Probability, s.IsFight)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d of %d windows flagged\n", results.Results.FightSegments, results.Results.TotalSegments)
	return nil
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "status JOB_ID",
		Short:        "Show the current state of a job.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			info, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch info.Status {
			case "completed":
				fmt.Printf("completed in %.1fs: %s\n", info.ProcessingTime, c.ResultsURL(args[0]))
			case "failed":
				fmt.Printf("failed: %s\n", info.Error)
			default:
				fmt.Println(info.Status)
			}
			return nil
		},
	}
}

func newReportCommand() *cobra.Command {
	var regenerate bool

	cmd := &cobra.Command{
		Use:          "report JOB_ID",
		Short:        "Print the security report for a completed job.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			if regenerate {
				report, err := c.RegenerateReport(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(report)
				return nil
			}

			results, err := c.Results(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(results.Report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "force a fresh report")
	return cmd
}

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "chat JOB_ID MESSAGE",
		Short:        "Ask a question about a completed job.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			answer, err := c.Chat(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		},
	}
}
