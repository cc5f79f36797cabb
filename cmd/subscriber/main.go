// Command subscriber is the listener side of a communication test. It subscribes to
// test_message_<message_name> and exits non-zero unless every expected message arrives
// within the cycle budget.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/celerway/commtest/cli"
	"github.com/celerway/commtest/harness"
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
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stdout, "subscriber stopped cleanly")
		return 0
	default:
		fmt.Fprintln(stderr, "exception in subscriber:")
		fmt.Fprintln(stderr, err)
		return 1
	}
}

func newCommand() *cobra.Command {
	opts := &cli.Options{}
	cmd := &cobra.Command{
		Use:   "subscriber [message_name]",
		Short: "Check that a talker's messages arrive",
		Long: fmt.Sprintf(`Subscribe to test_message_<message_name> and wait for every expected message.

message_name is one of %v (default %s).`, msg.Names(), msg.PrimitivesName),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := msg.PrimitivesName
			if len(args) == 1 {
				name = args[0]
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

			res, err := harness.Run(ctx, harness.Params{
				MessageName:    name,
				Implementation: p.Implementation,
				Config:         p,
				Cycles:         p.Cycles,
				SpinTimeout:    p.SpinTimeout,
				QoS:            rmw.QoSFromParams(p.QoS),
				ObsChannel:     mon.Channel(),
				Logger:         logger,
				Subscribed:     mon.Ready,
			})
			if err != nil {
				return err
			}
			logger.Infof("received %d of %d messages in %d cycles", res.Received, res.Expected, res.Cycles)
			return nil
		},
	}
	cli.AddFlags(cmd, opts)
	return cmd
}
