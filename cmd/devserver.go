package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/abhisek/mathdrill/internal/devserver"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory delivery API for local practice",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := setup(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer rt.Close()

		addr := rt.cfg.DevServer.Addr
		if a, _ := cmd.Flags().GetString("addr"); a != "" {
			addr = a
		}

		gin.SetMode(gin.ReleaseMode)
		srv := devserver.New(
			devserver.WithPages(rt.cfg.DevServer.Pages),
			devserver.WithProblemsPerPage(rt.cfg.DevServer.ProblemsPerPage),
			devserver.WithToken(rt.cfg.Server.Token),
			devserver.WithLogger(rt.logger.Named("devserver")),
			devserver.WithMetrics(rt.metrics),
		)
		return srv.Run(ctx, addr)
	},
}

func init() {
	devserverCmd.Flags().String("addr", "", "Listen address (overrides devserver.addr)")
}
