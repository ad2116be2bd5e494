package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/unwm/watermark-go/api"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd runs the HTTP API until the process is signalled.
func NewServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.cfg.Server.Addr = addr
			}
			if debug, _ := cmd.Flags().GetBool("gin-debug"); !debug {
				gin.SetMode(gin.ReleaseMode)
			}
			ctx := cmd.Context()
			srv := api.NewServer(a.eng, a.cfg, a.log).HTTPServer()

			errc := make(chan error, 1)
			go func() {
				a.log.InfoContext(ctx, "server starting", "addr", srv.Addr, "max_upload_bytes", a.cfg.Server.MaxUploadBytes)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			a.log.InfoContext(ctx, "shutting down server")
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				return err
			}
			a.log.InfoContext(ctx, "server exited gracefully")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address; overrides the config")
	cmd.Flags().Bool("gin-debug", false, "run gin in debug mode")
	return cmd
}
