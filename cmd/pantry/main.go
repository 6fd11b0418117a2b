package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pantry"
	pantryrpc "pantry/rpc"
)

const usage = `usage: pantry [flags] <command> [args]

commands:
  stock list | stock low | stock add [flags]
  consume -name NAME -unit UNIT -qty N [-id ID]
  recipe list | recipe search TERM | recipe cost ID | recipe prepare ID | recipe feed [PAGE [SIZE]]
  shopping generate | shopping list | shopping buy ID | shopping clear
  category list | category add NAME | category rename ID NAME | category rm ID
  serve [-addr :7070] [-metrics :9090]
  remote [-addr localhost:7070] stock | low | categories | shopping
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		log.Fatalf("pantry: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	cfg, err := pantry.LoadConfig(getenv)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("pantry", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage); fs.PrintDefaults() }
	fs.StringVar(&cfg.Store.Driver, "driver", cfg.Store.Driver, "store driver: memory, sqlite, postgres or s3")
	fs.StringVar(&cfg.Store.DSN, "dsn", cfg.Store.DSN, "sqlite path or postgres connection string")
	fs.StringVar(&cfg.Store.S3.Bucket, "s3-bucket", cfg.Store.S3.Bucket, "S3 bucket")
	fs.StringVar(&cfg.Store.S3.Region, "s3-region", cfg.Store.S3.Region, "S3 region")
	fs.StringVar(&cfg.Store.S3.Endpoint, "s3-endpoint", cfg.Store.S3.Endpoint, "S3 endpoint override")
	fs.StringVar(&cfg.Store.S3.Prefix, "s3-prefix", cfg.Store.S3.Prefix, "S3 key prefix")
	fs.BoolVar(&cfg.Store.S3.PathStyle, "s3-path-style", cfg.Store.S3.PathStyle, "use path-style S3 addressing")
	fs.StringVar(&cfg.Codec, "codec", cfg.Codec, "collection codec: msgpack, json or proto")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "off, normal or verbose")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	reg := prometheus.NewRegistry()
	metrics := pantry.NewMetrics(reg)
	k, store, err := pantry.Open(ctx, cfg, stderr, pantry.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer store.Close()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "stock":
		return stockCmd(ctx, k, cmdArgs, stdout)
	case "consume":
		return consumeCmd(ctx, k, cmdArgs, stdout)
	case "recipe":
		return recipeCmd(ctx, k, cmdArgs, stdout)
	case "shopping":
		return shoppingCmd(ctx, k, cmdArgs, stdout)
	case "category":
		return categoryCmd(ctx, k, cmdArgs, stdout)
	case "serve":
		return serveCmd(ctx, k, reg, cmdArgs)
	case "remote":
		return remoteCmd(ctx, cmdArgs, stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func sub(args []string) (string, []string) {
	if len(args) == 0 {
		return "list", nil
	}
	return args[0], args[1:]
}

func printStock(w io.Writer, items []pantry.StockItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tQTY\tUNIT\tMIN\tCOST\tHEALTH")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\t%v\t%.2f\t%s\n",
			it.ID, it.Name, it.Category, it.Quantity, it.Unit, it.MinQuantity, it.Cost, it.Health())
	}
	tw.Flush()
}

func stockCmd(ctx context.Context, k *pantry.Kitchen, args []string, w io.Writer) error {
	action, rest := sub(args)
	switch action {
	case "list":
		printStock(w, k.Stock.All(ctx))
	case "low":
		printStock(w, k.Stock.BelowMinimum(ctx))
	case "add":
		fs := flag.NewFlagSet("stock add", flag.ContinueOnError)
		var item pantry.StockItem
		fs.StringVar(&item.ID, "id", "", "existing item id to replace")
		fs.StringVar(&item.Name, "name", "", "item name")
		fs.StringVar(&item.Category, "category", "Outros", "category")
		fs.StringVar(&item.Unit, "unit", pantry.UnitPiece, "canonical unit")
		fs.Float64Var(&item.Quantity, "qty", 0, "quantity in unit")
		fs.Float64Var(&item.Cost, "cost", 0, "cost per unit")
		fs.Float64Var(&item.MinQuantity, "min", 0, "minimum quantity")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if item.Name == "" {
			return errors.New("stock add: -name is required")
		}
		saved, err := k.Stock.Upsert(ctx, item)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, saved.ID)
	default:
		return fmt.Errorf("unknown stock action %q", action)
	}
	return nil
}

func consumeCmd(ctx context.Context, k *pantry.Kitchen, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("consume", flag.ContinueOnError)
	var line pantry.ConsumeLine
	fs.StringVar(&line.StockID, "id", "", "stock item id")
	fs.StringVar(&line.Name, "name", "", "ingredient name")
	fs.StringVar(&line.Unit, "unit", "", "unit of -qty")
	fs.Float64Var(&line.Quantity, "qty", 0, "quantity to take")
	if err := fs.Parse(args); err != nil {
		return err
	}
	report, err := k.Stock.Consume(ctx, []pantry.ConsumeLine{line})
	if err != nil {
		return err
	}
	for _, c := range report.Consumed {
		fmt.Fprintf(w, "%s: %v -> %v (by %s)\n", c.Line.Name, c.Before, c.After, c.ResolvedBy)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "%s: not in stock, skipped\n", s.Name)
	}
	return nil
}

func printRecipes(w io.Writer, recipes []pantry.Recipe) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPORTIONS\tTOTAL\tPER PORTION\tPREPARED")
	for i := range recipes {
		rc := &recipes[i]
		prepared := "-"
		if rc.PreparedAt != nil {
			prepared = rc.PreparedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%s\n",
			rc.ID, rc.Name, rc.Portions, pantry.TotalCost(rc), pantry.CostPerPortion(rc), prepared)
	}
	tw.Flush()
}

func recipeCmd(ctx context.Context, k *pantry.Kitchen, args []string, w io.Writer) error {
	action, rest := sub(args)
	switch action {
	case "list":
		printRecipes(w, k.Recipes.List(ctx))
	case "search":
		if len(rest) != 1 {
			return errors.New("recipe search: expected TERM")
		}
		printRecipes(w, k.Recipes.Search(ctx, rest[0]))
	case "feed":
		page, size := 1, 10
		if len(rest) > 0 {
			page, _ = strconv.Atoi(rest[0])
		}
		if len(rest) > 1 {
			size, _ = strconv.Atoi(rest[1])
		}
		printRecipes(w, k.Recipes.PreparedFeed(ctx, page, size))
	case "cost":
		if len(rest) != 1 {
			return errors.New("recipe cost: expected ID")
		}
		rc, ok := k.Recipes.Get(ctx, rest[0])
		if !ok {
			return fmt.Errorf("recipe %s: %w", rest[0], pantry.ErrNotFound)
		}
		fmt.Fprintf(w, "total %.2f, per portion %.2f\n", pantry.TotalCost(&rc), pantry.CostPerPortion(&rc))
	case "prepare":
		if len(rest) != 1 {
			return errors.New("recipe prepare: expected ID")
		}
		report, err := k.PrepareRecipe(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d ingredients deducted, %d skipped\n", len(report.Consumed), len(report.Skipped))
	default:
		return fmt.Errorf("unknown recipe action %q", action)
	}
	return nil
}

func shoppingCmd(ctx context.Context, k *pantry.Kitchen, args []string, w io.Writer) error {
	action, rest := sub(args)
	switch action {
	case "generate":
		if _, err := k.RefreshShopping(ctx); err != nil {
			return err
		}
		fallthrough
	case "list":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tQTY\tUNIT\tESTIMATED\tPURCHASED")
		for _, n := range k.Shopping.Items(ctx) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\t%.2f\t%v\n",
				n.ID, n.Name, n.Category, n.Quantity, n.Unit, n.EstimatedCost, n.Purchased)
		}
		tw.Flush()
		fmt.Fprintf(w, "pending %.2f\n", k.Shopping.PendingTotal(ctx))
	case "buy":
		if len(rest) != 1 {
			return errors.New("shopping buy: expected ID")
		}
		return k.Shopping.MarkPurchased(ctx, rest[0])
	case "clear":
		return k.Shopping.ClearPurchased(ctx)
	default:
		return fmt.Errorf("unknown shopping action %q", action)
	}
	return nil
}

func categoryCmd(ctx context.Context, k *pantry.Kitchen, args []string, w io.Writer) error {
	action, rest := sub(args)
	switch action {
	case "list":
		for _, c := range k.Categories.All(ctx) {
			fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Name)
		}
	case "add":
		if len(rest) != 1 {
			return errors.New("category add: expected NAME")
		}
		c, err := k.Categories.Add(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, c.ID)
	case "rename":
		if len(rest) != 2 {
			return errors.New("category rename: expected ID NAME")
		}
		return k.Categories.Rename(ctx, rest[0], rest[1])
	case "rm":
		if len(rest) != 1 {
			return errors.New("category rm: expected ID")
		}
		return k.Categories.Remove(ctx, rest[0])
	default:
		return fmt.Errorf("unknown category action %q", action)
	}
	return nil
}

// remoteCmd queries a running serve instance instead of the local store.
func remoteCmd(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("remote", flag.ContinueOnError)
	addr := fs.String("addr", "localhost:7070", "rpc address of a running pantry serve")
	timeout := fs.Duration("timeout", 10*time.Second, "call timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	action, _ := sub(fs.Args())

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	c, err := pantryrpc.Dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer c.Close()

	switch action {
	case "list", "stock":
		items, err := c.ListStock(ctx)
		if err != nil {
			return err
		}
		printStock(w, items)
	case "low":
		items, err := c.BelowMinimum(ctx)
		if err != nil {
			return err
		}
		printStock(w, items)
	case "categories":
		cats, err := c.Categories(ctx)
		if err != nil {
			return err
		}
		for _, cat := range cats {
			fmt.Fprintln(w, cat)
		}
	case "shopping":
		needs, err := c.ShoppingList(ctx)
		if err != nil {
			return err
		}
		for _, n := range needs {
			fmt.Fprintf(w, "%s\t%s\t%v %s\t%.2f\n", n.ID, n.Name, n.Quantity, n.Unit, n.EstimatedCost)
		}
	default:
		return fmt.Errorf("unknown remote action %q", action)
	}
	return nil
}

func serveCmd(ctx context.Context, k *pantry.Kitchen, reg *prometheus.Registry, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":7070", "rpc listen address")
	metricsAddr := fs.String("metrics", ":9090", "metrics listen address, empty to disable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lg := k.Logger()
	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	var httpSrv *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpSrv = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			lg.Info("metrics on %s", *metricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	srv := pantryrpc.NewServer(k, lg)
	go func() {
		lg.Info("rpc on %s", ln.Addr())
		errCh <- srv.Serve(ctx, ln)
	}()

	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case err = <-errCh:
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	ln.Close()
	return err
}
