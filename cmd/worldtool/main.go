// Command worldtool loads a world snapshot, steps the simulation and writes
// the result back out.
//
//	worldtool -in level.world -steps 600 -out level.after.world
//	worldtool -in level.world -steps 10000 -profile cpu
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML config file (defaults apply when empty)")
	flag.StringVar(&opts.in, "in", "", "snapshot to load")
	flag.StringVar(&opts.out, "out", "", "where to write the world after stepping")
	flag.IntVar(&opts.steps, "steps", 0, "simulation steps to run")
	flag.StringVar(&opts.profile, "profile", "", "profile mode: cpu, mem, allocs, block, mutex or trace")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, "worldtool:", err)
		os.Exit(1)
	}
}
