// Command relay forwards the test topics from one rmw implementation to another, so that a
// publisher and a subscriber on different transports can talk to each other.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/celerway/commtest/bridge"
	"github.com/celerway/commtest/cli"
	"github.com/celerway/commtest/msg"
	"github.com/celerway/commtest/rmw"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		fmt.Fprintln(stdout, "relay stopped cleanly")
		return 0
	default:
		fmt.Fprintln(stderr, "exception in relay:")
		fmt.Fprintln(stderr, err)
		return 1
	}
}

func newCommand() *cobra.Command {
	opts := &cli.Options{}
	var from, to string
	cmd := &cobra.Command{
		Use:           "relay --from <impl> --to <impl> [message_name...]",
		Short:         "Relay test topics between two rmw implementations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == to {
				return fmt.Errorf("--from and --to are both '%s'", from)
			}
			var topics []string
			for _, name := range args {
				if _, err := msg.Lookup(name); err != nil {
					return err
				}
				topics = append(topics, rmw.TopicName(name))
			}
			p, err := opts.Params(cmd)
			if err != nil {
				return err
			}
			logger := cli.Logger(p)
			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()
			monCtx, stopMonitor := context.WithCancel(ctx)
			mon := cli.StartMonitor(monCtx, p, logger)
			defer func() {
				stopMonitor()
				if err := mon.Wait(); err != nil {
					logger.Warnf("observability: %s", err)
				}
			}()

			src, err := rmw.New(from, p, logger)
			if err != nil {
				return err
			}
			dst, err := rmw.New(to, p, logger)
			if err != nil {
				_ = src.Shutdown()
				return err
			}
			relayed, err := bridge.Run(ctx, bridge.Params{
				From:        src,
				To:          dst,
				Topics:      topics,
				QoS:         rmw.QoSFromParams(p.QoS),
				SpinTimeout: p.SpinTimeout,
				ObsChannel:  mon.Channel(),
				Logger:      logger,
				Subscribed:  mon.Ready,
			})
			logger.Infof("relayed %d messages", relayed)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", fmt.Sprintf("source implementation %v", rmw.Implementations()))
	cmd.Flags().StringVar(&to, "to", "", fmt.Sprintf("destination implementation %v", rmw.Implementations()))
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	cli.AddFlags(cmd, opts)
	return cmd
}
