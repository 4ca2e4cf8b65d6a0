// Command smartrag is the retrieval-augmented question-answering engine's
// CLI entrypoint: load configuration, build the Engine, and either answer
// one query or run the folder watcher until interrupted. Grounded on the
// teacher's own flag-based main.go (no cobra dependency was wired into
// go.mod for this module, so the simpler stdlib flag style is kept).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/byerlikaya/smartrag/pkg/config"
	"github.com/byerlikaya/smartrag/pkg/convstore"
	"github.com/byerlikaya/smartrag/pkg/engine"
	"github.com/byerlikaya/smartrag/pkg/logging"
	"github.com/byerlikaya/smartrag/pkg/toolclient"
	"github.com/byerlikaya/smartrag/pkg/version"
)

func main() {
	configFile := flag.String("config", "smartrag.yaml", "path to the configuration file")
	query := flag.String("query", "", "run a single query and print the answer, instead of watching folders")
	sessionID := flag.String("session", "", "conversation session id to continue (empty starts a new one)")
	debug := flag.Bool("debug", false, "enable debug logging to a rotating log file")
	logFile := flag.String("log-file", "smartrag.debug.log", "path to the debug log file (only used with -debug)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	regenerateEmbeddings := flag.Bool("regenerate-embeddings", false, "re-embed every chunk with a missing or stale-dimension vector, then exit")
	clearEmbeddings := flag.Bool("clear-embeddings", false, "drop every chunk's vector without deleting documents or chunks, then exit")
	clearDocuments := flag.Bool("clear-documents", false, "delete every document, chunk, and vector, then exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	if *debug {
		rf, err := logging.NewRotatingFile(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer rf.Close()
		slog.SetDefault(slog.New(slog.NewTextHandler(rf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		slog.SetDefault(slog.New(slog.DiscardHandler))
	}

	opts := adminOpts{regenerateEmbeddings: *regenerateEmbeddings, clearEmbeddings: *clearEmbeddings, clearDocuments: *clearDocuments}
	if err := run(*configFile, *query, *sessionID, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// adminOpts carries the document-admin CLI flags that run once and exit,
// instead of starting the query/watch loop.
type adminOpts struct {
	regenerateEmbeddings bool
	clearEmbeddings      bool
	clearDocuments       bool
}

func run(configFile, query, sessionID string, admin adminOpts) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	cfg, err := config.Load(data)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	convBackend := "memory"
	if cfg.ConversationStorageProvider == config.StorageSQLite {
		convBackend = "sqlite"
	}
	convs, err := convstore.New(convBackend, cfg.ConversationStoragePath, convstore.DefaultBounds())
	if err != nil {
		return fmt.Errorf("building conversation store: %w", err)
	}

	var toolServers []toolclient.Server
	if cfg.EnableMcpSearch {
		for _, s := range cfg.McpServers {
			switch s.Transport {
			case "stdio":
				toolServers = append(toolServers, toolclient.NewStdioServer(s.Name, s.Command, s.Args, s.Env))
			default:
				toolServers = append(toolServers, toolclient.NewRemoteServer(s.Name, s.URL, s.Transport, s.Headers))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, engine.Deps{Conversations: convs, ToolServers: toolServers})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.Close()

	if admin.clearDocuments {
		if err := eng.ClearAllDocuments(ctx); err != nil {
			return fmt.Errorf("clearing all documents: %w", err)
		}
		fmt.Println("cleared all documents")
		return nil
	}
	if admin.clearEmbeddings {
		if err := eng.ClearEmbeddings(ctx); err != nil {
			return fmt.Errorf("clearing embeddings: %w", err)
		}
		fmt.Println("cleared all embeddings")
		return nil
	}
	if admin.regenerateEmbeddings {
		n, err := eng.RegenerateEmbeddings(ctx)
		if err != nil {
			return fmt.Errorf("regenerating embeddings: %w", err)
		}
		fmt.Printf("regenerated %d chunk embedding(s)\n", n)
		return nil
	}

	if query != "" {
		result, err := eng.Query(ctx, query, sessionID, 5, false)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		fmt.Println(result.Answer)
		for _, src := range result.Sources {
			fmt.Printf("  - %s (%.2f)\n", filepath.Base(src.FileName), src.RelevanceScore)
		}
		return nil
	}

	if err := eng.StartWatchers(ctx); err != nil {
		return fmt.Errorf("starting watchers: %w", err)
	}

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
