package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/iamgraph/iamgraph"
)

func NewServerCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server [flags] snapshot-file",
		Short: "Serve permission queries over HTTP for a snapshot",
		Args:  cobra.ExactArgs(1),
	}

	var (
		port int
	)

	flags := cmd.Flags()
	flags.IntVar(&port, "port", 4000, "port the server is listening on")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		snap, err := iamgraph.LoadSnapshotFile(args[0])
		if err != nil {
			return err
		}
		graph, err := iamgraph.Build(snap)
		if err != nil {
			return err
		}
		log.Info("built permission graph", slog.Int("identities", len(snap.Users)+len(snap.Groups)+len(snap.Roles)))

		handler := NewQueryHandler(log.WithGroup("handler"), graph)

		server := http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: h2c.NewHandler(handler.Mux(), &http2.Server{}),
			BaseContext: func(l net.Listener) context.Context {
				return ctx
			},
		}

		log.Info(fmt.Sprintf("started server on 0.0.0.0:%d, http://localhost:%d", port, port))
		go func() {
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				log.Info("server gracefully closed")
			} else if err != nil {
				log.Error("error listening on server", slog.Any("error", err))
			}
		}()

		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error("error on server shutdown", slog.Any("error", err))
			return err
		}
		return nil
	}

	return cmd
}
