package commands

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newMetricsCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Metrics exposition",
	}
	cmd.AddCommand(newMetricsServeCommand(root))
	return cmd
}

func newMetricsServeCommand(root *string) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Prometheus metrics at /metrics and health at /health",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			app.Metrics.RegisterHTTPHandlers(mux)

			addr := fmt.Sprintf(":%d", port)
			app.Logger.Info("metrics server listening", "addr", addr)

			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				<-cmd.Context().Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 9090, "listen port")
	return cmd
}
