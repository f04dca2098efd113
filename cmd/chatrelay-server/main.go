package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"

	"github.com/urfave/cli"

	"chatrelay/internal/adminapi"
	"chatrelay/internal/directory"
	"chatrelay/internal/relay"
)

// Version is set at build time via -ldflags, matching the teacher's
// kcptun binaries.
var Version = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "chatrelay-server"
	app.Usage = "TCP chat relay"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Value: "127.0.0.1",
			Usage: "address to listen on",
		},
		cli.IntFlag{
			Name:  "port",
			Value: 65432,
			Usage: "port to listen on",
		},
		cli.IntFlag{
			Name:  "backlog",
			Value: 10,
			Usage: "requested TCP accept backlog (best-effort; Go has no portable way to set this)",
		},
		cli.StringFlag{
			Name:  "admin-addr",
			Value: "",
			Usage: "address for the /healthz and /stats admin HTTP API (empty to disable)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("[chatrelay-server] %v", err)
	}
}

func run(c *cli.Context) error {
	addr := net.JoinHostPort(c.String("host"), fmt.Sprintf("%d", c.Int("port")))
	backlog := c.Int("backlog")
	adminAddr := c.String("admin-addr")

	dir := directory.New()
	srv := relay.NewServer(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[chatrelay-server] shutting down...")
		cancel()
	}()

	// A bare "quit" on stdin triggers the same graceful shutdown as SIGINT,
	// useful when the process isn't attached to a terminal job-control shell.
	go watchStdinForQuit(cancel)

	if adminAddr != "" {
		admin := adminapi.NewServer(dir)
		go admin.Run(ctx, adminAddr)
		log.Printf("[chatrelay-server] admin API listening on %s", adminAddr)
	}

	return srv.ListenAndServe(ctx, addr, backlog)
}

func watchStdinForQuit(cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if scanner.Text() == "quit" {
			cancel()
			return
		}
	}
}
