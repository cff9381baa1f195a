package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/segdag/segdag/internal/debugserver"
)

var (
	serveDagName string
	serveAddr    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only ancestry-query HTTP server",
	Long: `serve opens a dag's durable snapshot read-only and exposes
/api/ancestors, /api/descendants, /api/parents, /api/children,
/api/heads, /api/roots, /api/range, /api/gca, /api/is_ancestor and
/api/render over it. Many concurrent requests may query the same
immutable snapshot.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	binName := BinName()
	serveCmd.Example = `  # Serve "main" on the configured debug address
  ` + binName + ` serve --dag main

  # Serve on an explicit address
  ` + binName + ` serve --dag main --addr :9090`

	serveCmd.Flags().StringVar(&serveDagName, "dag", "default", "Name of the dag to serve")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to the configured debug.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	cfg := GetConfig()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Debug.Addr
	}

	return withOpenedDag(serveDagName, func(od *openedDag) error {
		srv := debugserver.NewServer(addr, od.Dag, od.IdMap, log)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Info("Shutting down debug server...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()

		log.Info("Serving dag %q on %s (read-only)", serveDagName, addr)
		fmt.Printf("Listening on %s\n", addr)
		return srv.Start()
	})
}
