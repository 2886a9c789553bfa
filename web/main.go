package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
	"github.com/df07/go-adaptive-sampler/web/server"
)

func main() {
	// Parse command line flags
	port := flag.Int("port", 8080, "Port to serve on")
	verbose := flag.Bool("verbose", false, "Also stream per-round debug records to the console")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}

	// Records go to stdout for server logs and to the console of every
	// active render
	console := server.NewConsoleHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}), level)
	adaptive.SetLogger(slog.New(console))

	webServer := server.NewServer(*port, console)

	adaptive.Logger().Info("adaptive sampler web server", "port", *port)

	if err := webServer.Start(); err != nil {
		adaptive.Logger().Error("server stopped", "error", err)
		os.Exit(1)
	}
}
