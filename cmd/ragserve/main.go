// Ragserve serves tag-partitioned retrieval over HTTP.
//
// Items are embedded by a text-embeddings-inference server (or a local
// fastembed model), indexed once per tag and queried by tag.
//
// Usage:
//
//	# Start with defaults and environment overrides
//	ragserve
//
//	# Start with a config file
//	ragserve -config /etc/ragserve/config.yaml
//
//	# Override through the environment
//	RAGSERVE_EMBEDDINGS_HOST=tei RAGSERVE_INDEX_BACKEND=qdrant ragserve
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/ragserve/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragserve [-config path]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  ragserve version          Show version information\n")
			os.Exit(2)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		log.Fatalf("ragserve: %v", err)
	}
}

func printVersion() {
	fmt.Printf("ragserve by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
