// Command positions fetches the current open positions of one or more
// wallets and prints them. Read-only diagnostic: nothing is traded or
// persisted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/internal/watcher"
	"github.com/betbot/copytrader/pkg/config"
	"github.com/betbot/copytrader/pkg/logger"
	"github.com/betbot/copytrader/pkg/sdk/dataapi"
)

type positionRow struct {
	ID       string          `json:"id"`
	Market   string          `json:"market"`
	Title    string          `json:"title"`
	Outcome  string          `json:"outcome"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

type activityRow struct {
	At      time.Time       `json:"at"`
	Type    string          `json:"type"`
	Side    string          `json:"side,omitempty"`
	Outcome string          `json:"outcome,omitempty"`
	Size    decimal.Decimal `json:"size"`
	Price   decimal.Decimal `json:"price"`
	Title   string          `json:"title"`
}

type walletReport struct {
	Source     string          `json:"source"`
	CapturedAt time.Time       `json:"capturedAt"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Positions  []positionRow   `json:"positions"`
	Activity   []activityRow   `json:"activity,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "config file path")
	source := flag.String("source", "", "wallet address (default: every configured source)")
	asJSON := flag.Bool("json", false, "emit JSON instead of a table")
	activity := flag.Int("activity", 0, "also show the wallet's last N activity rows")
	timeout := flag.Duration("timeout", 30*time.Second, "fetch timeout")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.InitDefault(); err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}

	var sources []string
	if strings.TrimSpace(*source) != "" {
		sources = []string{strings.ToLower(strings.TrimSpace(*source))}
	} else {
		if *configPath != "" {
			config.SetConfigPath(*configPath)
		}
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		for _, src := range cfg.Sources {
			sources = append(sources, src.Address)
		}
	}
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "no sources: pass -source or configure SOURCES")
		os.Exit(1)
	}

	api := dataapi.NewClient(os.Getenv("DATA_API_HOST"))
	fetcher := watcher.NewDataAPIFetcher(api)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	exitCode := 0
	reports := make([]walletReport, 0, len(sources))
	for _, src := range sources {
		snap, err := fetcher.FetchPositions(ctx, src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetch %s: %v\n", src, err)
			exitCode = 1
			continue
		}
		r := report(snap)
		if *activity > 0 {
			rows, err := api.GetActivity(ctx, src, *activity)
			if err != nil {
				fmt.Fprintf(os.Stderr, "activity %s: %v\n", src, err)
				exitCode = 1
			}
			r.Activity = activityRows(rows)
		}
		reports = append(reports, r)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			exitCode = 1
		}
	} else {
		for _, r := range reports {
			printTable(r)
		}
	}
	os.Exit(exitCode)
}

func report(snap domain.Snapshot) walletReport {
	rows := make([]positionRow, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		rows = append(rows, positionRow{
			ID:       p.ID,
			Market:   p.Market,
			Title:    p.Title,
			Outcome:  p.Outcome,
			Quantity: p.Quantity,
			Price:    p.Price,
			Value:    p.Value,
		})
	}
	// Biggest exposure first.
	sort.Slice(rows, func(i, j int) bool { return rows[i].Value.GreaterThan(rows[j].Value) })
	return walletReport{
		Source:     snap.Source,
		CapturedAt: snap.CapturedAt,
		TotalValue: snap.TotalValue,
		Positions:  rows,
	}
}

func activityRows(rows []dataapi.Activity) []activityRow {
	out := make([]activityRow, 0, len(rows))
	for _, a := range rows {
		out = append(out, activityRow{
			At:      time.Unix(a.Timestamp, 0),
			Type:    a.Type,
			Side:    a.Side,
			Outcome: a.Outcome,
			Size:    a.Size.Decimal,
			Price:   a.Price.Decimal,
			Title:   a.Title,
		})
	}
	return out
}

func printTable(r walletReport) {
	fmt.Printf("\n%s  (%d positions, $%s)\n", r.Source, len(r.Positions), r.TotalValue.StringFixed(2))
	if len(r.Positions) == 0 {
		fmt.Println("  no open positions")
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	if len(r.Positions) > 0 {
		fmt.Fprintln(w, "  OUTCOME\tQTY\tPRICE\tVALUE\tTITLE")
		for _, row := range r.Positions {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				row.Outcome,
				row.Quantity.StringFixed(2),
				row.Price.StringFixed(3),
				row.Value.StringFixed(2),
				clip(row.Title),
			)
		}
		_ = w.Flush()
	}

	if len(r.Activity) > 0 {
		fmt.Printf("\n  last %d activity rows\n", len(r.Activity))
		w = tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  WHEN\tTYPE\tSIDE\tOUTCOME\tSIZE\tPRICE\tTITLE")
		for _, a := range r.Activity {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				a.At.Format("01-02 15:04"),
				a.Type,
				a.Side,
				a.Outcome,
				a.Size.StringFixed(2),
				a.Price.StringFixed(3),
				clip(a.Title),
			)
		}
		_ = w.Flush()
	}
}

func clip(title string) string {
	if len(title) > 60 {
		return title[:57] + "..."
	}
	return title
}
