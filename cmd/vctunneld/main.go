package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/op/go-logging"
	"github.com/urfave/cli"

	"github.com/smarre/vctunnel/common/log"
	"github.com/smarre/vctunnel/common/version"
	"github.com/smarre/vctunnel/daemon"
)

func run(c *cli.Context) (err error) {
	defer func() {
		if x := recover(); x != nil {
			log.Log.Errorf("run time panic: %v", x)
			log.Log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	level := logging.NOTICE
	if c.Bool("verbose") {
		level = logging.DEBUG
	}
	if s := c.String("log-level"); s != "" {
		if parsed, parseErr := logging.LogLevel(s); parseErr == nil {
			level = parsed
		}
	}
	log.Setup("vctunneld", level)

	var ch daemon.Channel
	if path := c.String("channel"); path != "" {
		ch, err = daemon.DialDevChannel(path)
		if err != nil {
			log.Log.Errorf("failed to dial dev channel %q: %v", path, err)
			return err
		}
		log.Log.Noticef("using development channel at %s", path)
	} else {
		ch = daemon.InheritedChannel()
		log.Log.Notice("using inherited stdio as the shared channel")
	}

	srv := daemon.NewServer(ch, log.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-stop
		if ok {
			log.Log.Noticef("received signal %v, shutting down", sig)
			cancel()
		}
	}()

	log.Log.Noticef("vctunneld %s launched (run %s)", version.CURRENT_VERSION, log.RunID)
	return srv.Run(ctx)
}

func main() {
	app := cli.NewApp()
	app.Name = "vctunneld"
	app.Usage = "server-side tunnel multiplexer for a remote-desktop virtual channel"
	app.Version = version.CURRENT_VERSION.String()
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log at debug level",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "CRITICAL, ERROR, WARNING, NOTICE, INFO, or DEBUG (overrides --verbose)",
		},
		cli.StringFlag{
			Name:  "channel",
			Usage: "path to a UNIX socket (or, on Windows, a named pipe) to use as the shared channel instead of inherited stdio",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
