package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docsift/docsift/internal/collection"
	"github.com/docsift/docsift/internal/config"
	"github.com/docsift/docsift/internal/embedder"
	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/internal/searcher"
	"github.com/docsift/docsift/internal/storage"
	"github.com/docsift/docsift/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("docsift\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "docsift: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: docsift <command> [flags]

commands:
  add     add a document from stdin or -content
  get     print one document by id
  list    list all document ids
  query   search the collection
  delete  delete documents by id`)
}

func run(command string, args []string) error {
	cfg, err := config.Load(os.Getenv("DOCSIFT_CONFIG"))
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coll, err := collection.Open(ctx, cfg.DatabaseURL, collection.Options{
		Prefix:   cfg.Prefix,
		Embedder: embedder.Hash{},
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = coll.Close() }()

	switch command {
	case "add":
		return cmdAdd(ctx, coll, args)
	case "get":
		return cmdGet(ctx, coll, args)
	case "list":
		return cmdList(ctx, coll, args)
	case "query":
		return cmdQuery(ctx, coll, cfg, args)
	case "delete":
		return cmdDelete(ctx, coll, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func cmdAdd(ctx context.Context, coll *collection.Collection, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	id := fs.String("id", "", "document id (generated when empty)")
	content := fs.String("content", "", "document content (stdin when empty)")
	meta := fs.String("meta", "", "metadata as comma-separated key=value pairs")
	_ = fs.Parse(args)

	text := *content
	if text == "" {
		data, err := readStdin()
		if err != nil {
			return err
		}
		text = data
	}
	if text == "" {
		return fmt.Errorf("no content given")
	}

	metadata, err := parseMeta(*meta)
	if err != nil {
		return err
	}

	ids, err := coll.Add(ctx, []*types.Document{{ID: *id, Content: text, Metadata: metadata}})
	if err != nil {
		return err
	}
	fmt.Println(ids[0])
	return nil
}

func cmdGet(ctx context.Context, coll *collection.Collection, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("get needs exactly one id")
	}
	doc, err := coll.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func cmdList(ctx context.Context, coll *collection.Collection, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	withContent := fs.Bool("content", false, "include document content")
	_ = fs.Parse(args)

	docs, err := coll.All(ctx, *withContent)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := printJSON(doc); err != nil {
			return err
		}
	}
	return nil
}

func cmdQuery(ctx context.Context, coll *collection.Collection, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	text := fs.String("text", "", "lexical query")
	metaFilter := fs.String("filter", "", "metadata filter as comma-separated key=value pairs")
	limit := fs.Int("limit", cfg.DefaultLimit, "maximum results, 0 for all")
	offset := fs.Int("offset", 0, "results to skip")
	orderBy := fs.String("order-by", "", "metadata key to order by, -key for descending")
	vector := fs.Bool("vector", false, "rank by embedding similarity")
	_ = fs.Parse(args)

	req := searcher.Request{
		Text:         *text,
		Limit:        *limit,
		Offset:       *offset,
		OrderBy:      *orderBy,
		VectorSearch: *vector,
	}

	if *metaFilter != "" {
		metadata, err := parseMeta(*metaFilter)
		if err != nil {
			return err
		}
		pred, err := filter.FromMap(metadata)
		if err != nil {
			return err
		}
		req.Filter = pred
	}

	results, err := coll.Query(ctx, req)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := printJSON(r); err != nil {
			return err
		}
	}
	return nil
}

func cmdDelete(ctx context.Context, coll *collection.Collection, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("delete needs at least one id")
	}
	return coll.Delete(ctx, args...)
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseMeta turns "lang=en,views=10,draft=false" into typed metadata.
// Values parse as number, then bool, then fall back to string.
func parseMeta(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	out := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad key=value pair %q", pair)
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
