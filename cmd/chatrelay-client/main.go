package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"chatrelay/internal/link"
)

var Version = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "chatrelay-client"
	app.Usage = "TCP chat relay client"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Value: "127.0.0.1",
			Usage: "server address to connect to",
		},
		cli.IntFlag{
			Name:  "port",
			Value: 65432,
			Usage: "server port to connect to",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("[chatrelay-client] %v", err)
	}
}

func run(c *cli.Context) error {
	addr := net.JoinHostPort(c.String("host"), fmt.Sprintf("%d", c.Int("port")))

	conn, err := link.Dial(addr)
	if err != nil {
		color.Red("Could not connect to %s: %v", addr, err)
		return err
	}
	defer conn.Close()

	fmt.Printf("Connected to %s.\n\n", addr)
	newSession(conn).run()
	return nil
}
