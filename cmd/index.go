package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIndexCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Indexes every configured site once and exits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := appInstance.Coordinator().IndexAll(ctx)
			appInstance.Logger().Info("index command finished",
				zap.Int("indexed", res.Indexed),
				zap.Int("failed", res.Failed),
				zap.Int("skipped", res.Skipped),
			)
			if err != nil {
				return err
			}
			if strict && (res.Failed > 0 || res.Skipped > 0) {
				return fmt.Errorf("%d site(s) failed, %d skipped", res.Failed, res.Skipped)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any site is not INDEXED")
	return cmd
}
