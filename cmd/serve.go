package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/controller"
	"github.com/codacy-acme/gl-repo-reporter/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var listenPort string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.API.ListenPort = listenPort
			}

			cfg.ResolveToken()
			if cfg.Codacy.Token == "" {
				return errors.New("API token not provided. set " + config.TokenEnvVar + " or add it to the configuration")
			}

			return serve(*cfg)
		},
	}

	cmd.Flags().StringVar(&listenPort, "port", "", "listen port (default from configuration)")

	return cmd
}

// NewRouter builds the HTTP surface on top of the report service
func NewRouter(reportService service.ReportService, cfg config.Config) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Content-Type, Content-Length, Accept-Encoding, Host, accept, Origin, Cache-Control, X-Requested-With"},
			MaxAge:       12 * time.Hour,
		}),
	)

	controller.RegisterRoutes(router, controller.NewAPIController(cfg, reportService))

	return router
}

func serve(cfg config.Config) error {
	// one pacing limiter for the whole process, every report shares the same quota
	client := service.NewCodacyClient(cfg, &http.Client{}, service.NewRateLimiter(cfg.Codacy.RequestsPerSecond))
	reportService := service.NewReportService(cfg, client)

	gin.SetMode(gin.ReleaseMode)

	server := &http.Server{
		Addr:    ":" + cfg.API.ListenPort,
		Handler: NewRouter(reportService, cfg),
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("server listening on port " + cfg.API.ListenPort)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// wait for interrupt signal to gracefully shut down the server with a timeout of 15 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.WithError(err).Error("error while starting server")
		return err
	case <-quit:
	}

	log.Info("SIGINT, SIGTERM received, will shut down server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		return err
	}

	log.Info("Application stopped gracefully !")
	return nil
}
