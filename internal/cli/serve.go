package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quii/guardedcounter/server"
	"github.com/quii/guardedcounter/sink"
)

const shutdownTimeout = 10 * time.Second

type ServeArgs struct {
	addr *string
	ttl  *time.Duration
	echo *bool
}

func NewServeArgs() *ServeArgs {
	return &ServeArgs{
		addr: new(string),
		ttl:  new(time.Duration),
		echo: new(bool),
	}
}

// NewServeCmd returns the serve command.
func NewServeCmd() *cobra.Command {
	args := NewServeArgs()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start and inspect runs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cc.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []server.Option{
				server.WithLogger(slog.Default()),
				server.WithTTL(*args.ttl),
			}
			if *args.echo {
				opts = append(opts, server.WithSink(sink.NewWriterSink(cc.OutOrStdout())))
			}

			return serve(ctx, *args.addr, server.New(ctx, opts...))
		},
	}

	cmd.Flags().StringVar(args.addr, "addr", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().DurationVar(args.ttl, "ttl", server.DefaultTTL, "How long finished runs are kept")
	cmd.Flags().BoolVar(args.echo, "echo", false, "Also print every run's output lines")

	return cmd
}

// serve runs srv on addr until ctx ends, then shuts down and waits for
// in-flight runs.
func serve(ctx context.Context, addr string, srv *server.Server) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	hs := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", slog.String("addr", ln.Addr().String()))

		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := hs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		srv.Wait()
		slog.Info("server stopped")

		return nil
	})

	return g.Wait()
}
