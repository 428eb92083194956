package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/funvibe/sable/internal/remote"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the engine over gRPC",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":7411", Usage: "listen address"},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	srv, err := remote.NewServer(remote.ServerOptions{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", cmd.String("addr"))
	if err != nil {
		return err
	}
	g := grpc.NewServer()
	srv.Register(g)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("serving", "addr", lis.Addr().String(), "service", remote.ServiceName)
		return g.Serve(lis)
	})
	eg.Go(func() error {
		<-ctx.Done()
		g.GracefulStop()
		srv.Close()
		logger.Info("stopped")
		return nil
	})
	return eg.Wait()
}
