// Command libosd is the composition root: it reads an init-config JSON
// file, wires a zerolog-backed logiface logger, brings up the untrusted
// allocator, the N-vCPU scheduler/executor pair, the page cache plus its
// evictor, and the process table, then blocks until told to shut down.
//
// Grounded on the teacher's own cmd-style main (eventloop is a library
// without a cmd/, so the overall shape — flag parsing, a logger built once
// and threaded through constructors, an explicit shutdown sequence — is
// drawn from the logiface/zerolog wiring pattern shown throughout the
// logiface test corpus, generalized into a real program entrypoint).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeycumines/logiface"
	logifacezerolog "github.com/joeycumines/logiface/zerolog"

	"github.com/joeycumines/libos-core/config"
	"github.com/joeycumines/libos-core/internal/clock"
	"github.com/joeycumines/libos-core/internal/executor"
	"github.com/joeycumines/libos-core/internal/fdtable"
	"github.com/joeycumines/libos-core/internal/logging"
	"github.com/joeycumines/libos-core/internal/pagecache"
	"github.com/joeycumines/libos-core/internal/process"
	"github.com/joeycumines/libos-core/internal/sched"
	"github.com/joeycumines/libos-core/internal/timer"
	"github.com/joeycumines/libos-core/internal/untrusted"
)

func main() {
	configPath := flag.String("config", "", "path to init config JSON (required)")
	numVCPU := flag.Int("vcpus", 1, "number of virtual CPUs to schedule across")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "libosd: -config is required")
		os.Exit(2)
	}

	data, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "libosd: reading config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "libosd: parsing config: %v\n", err)
		os.Exit(1)
	}

	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log := logging.New(logiface.New[logiface.Event](logifacezerolog.WithZerolog(zl)))

	log.Info().Str("component", "libosd").Log("starting")

	alloc := untrusted.NewAllocator(uint64(cfg.UserSpaceSize), 85)

	backend := pagecache.Backend(nil) // wired by a concrete storage engine at a higher layer; see DESIGN.md
	cache := pagecache.NewCache(backend)
	evictor := pagecache.NewEvictor()
	evictor.Register(cache)

	schedr := sched.New(*numVCPU)
	wheel := timer.NewWheel(clock.Real)
	exec := executor.New(schedr, wheel, clock.Real, log)

	procTable := process.NewTable()
	initFS := process.NewFSView("/", "/", 0o022)
	initLabel := fmt.Sprintf("product=%d svn=%d", cfg.Metadata.ProductID, cfg.Metadata.SVN)
	_ = procTable.Spawn(nil, initLabel, initFS, fdtable.New())

	exec.Start()
	defer exec.Wait()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	evictTicker := time.NewTicker(250 * time.Millisecond)
	defer evictTicker.Stop()

	for {
		select {
		case <-stop:
			log.Info().Log("shutdown signal received")
			flushed, remaining := cache.Close()
			log.Info().Int("flushed", flushed).Int("remaining_dirty", remaining).Log("page cache closed")
			exec.Shutdown()
			return
		case <-evictTicker.C:
			evictor.Run(alloc.IsLow, 64)
		}
	}
}
