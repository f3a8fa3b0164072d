package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/goalrunner/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept objectives and report session status over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		go a.shutdown(ctx)

		srv := api.NewServer(a.orch, api.WithEventBus(a.bus), api.WithBaseContext(ctx))

		log.Printf("goalrunner listening on %s", addr)
		err = srv.ListenAndServe(ctx, addr)

		// Sessions share ctx and stop with it
		a.orch.Wait()
		log.Println("Shutdown complete")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
}
