// Command publisher is the talker side of a communication test. It publishes the expected
// messages of one type on test_message_<message_name> once per cycle.
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
		fmt.Fprintln(stdout, "publisher stopped cleanly")
		return 0
	default:
		fmt.Fprintln(stderr, "exception in publisher:")
		fmt.Fprintln(stderr, err)
		return 1
	}
}

func newCommand() *cobra.Command {
	opts := &cli.Options{}
	cmd := &cobra.Command{
		Use:           "publisher [message_name]",
		Short:         "Publish the expected messages of one type",
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

			sent, err := harness.Publish(ctx, harness.PublishParams{
				MessageName:    name,
				Implementation: p.Implementation,
				Config:         p,
				Cycles:         p.Cycles,
				Period:         p.PublishPeriod,
				QoS:            rmw.QoSFromParams(p.QoS),
				NodeName:       "publisher",
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			logger.Infof("published %d messages", sent)
			return nil
		},
	}
	cli.AddFlags(cmd, opts)
	return cmd
}
