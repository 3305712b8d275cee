// Command tm-supervisorctl is a CLI control client for tm-supervisord: it
// dials the daemon's /events websocket and renders the Event stream as a
// table, the way a control client tails a running server's activity log.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"
)

type eventEnvelope struct {
	Kind string `json:"kind"`
	Peer string `json:"peer"`
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[tm-supervisorctl] %v\n", err)
	os.Exit(1)
}

func dialEvents(ctx *cli.Context) *websocket.Conn {
	url := fmt.Sprintf("ws://%s/events", ctx.GlobalString("admin"))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fatal(fmt.Errorf("dialing %s: %w", url, err))
	}
	return conn
}

var tailCommand = cli.Command{
	Name:  "tail",
	Usage: "stream Events from a running tm-supervisord as a table",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "limit", Value: 0, Usage: "stop after N events (0 = unbounded)"},
	},
	Action: func(ctx *cli.Context) error {
		conn := dialEvents(ctx)
		defer conn.Close()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Time", "Kind", "Peer"})

		limit := ctx.Int("limit")
		for i := 0; limit <= 0 || i < limit; i++ {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("reading event: %w", err)
			}

			var ev eventEnvelope
			if err := json.Unmarshal(payload, &ev); err != nil {
				continue
			}

			t.AppendRow(table.Row{i + 1, time.Now().Format(time.RFC3339), ev.Kind, ev.Peer})
			t.Render()
		}

		return nil
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "tm-supervisorctl"
	app.Version = "0.1"
	app.Usage = "control client for tm-supervisord"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "admin",
			Value: "127.0.0.1:9900",
			Usage: "host:port of the daemon's admin endpoint",
		},
	}
	app.Commands = []cli.Command{
		tailCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
