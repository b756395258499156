package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"sahyatri/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: sahyatri-ctl [--socket path] listen|stop|mute|unmute|say <text>")
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{
		Cmd:  ipc.Command(args[0]),
		Text: strings.Join(args[1:], " "),
	}
	if err := msg.Validate(); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ipc.Send(ctx, *socket, msg); err != nil {
		fmt.Println("sahyatri-daemon:", err)
		os.Exit(1)
	}
}
