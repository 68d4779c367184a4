// Package main is a CLI reporting tool: it reads the sqlite trade-audit
// database a running engine has been writing to and prints recent trade
// history, realized P&L, and the three-scope drawdown snapshot.
//
// Grounded on the teacher's scripts/audit_positions (a standalone
// broker-state auditing CLI run alongside the bot) and on
// AlejandroRuiz99-polybot's internal/adapters/notify/console.go for the
// tablewriter table-rendering idiom.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/tradecore/enginecore/internal/domain"
	"github.com/tradecore/enginecore/internal/risk"
	"github.com/tradecore/enginecore/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dbPath         string
		sinceHours     int
		initialBalance float64
	)
	flag.StringVar(&dbPath, "db", "trades.db", "Path to the trade audit database")
	flag.IntVar(&sinceHours, "since-hours", 24*30, "How many hours of history to include")
	flag.Float64Var(&initialBalance, "initial-balance", 10000, "Initial balance for drawdown calculation")
	flag.Parse()

	store, err := storage.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: failed to open audit database: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	since := time.Now().UTC().Add(-time.Duration(sinceHours) * time.Hour)
	trades, err := store.Recent(context.Background(), since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: failed to query trades: %v\n", err)
		return 1
	}

	printTradeTable(trades)
	printSummary(trades, initialBalance)
	return 0
}

func printTradeTable(trades []domain.TradeRecord) {
	if len(trades) == 0 {
		fmt.Println("no trades recorded in the selected window")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Symbol", "Strategy", "Opened", "Closed", "Entry", "Exit", "Size", "PnL")

	for i, t := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Symbol,
			t.StrategyName,
			t.EntryTime.Format("2006-01-02 15:04"),
			t.ExitTime.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.5f", t.EntryPrice),
			fmt.Sprintf("%.5f", t.ExitPrice),
			fmt.Sprintf("%.2f", t.Size),
			fmt.Sprintf("%.2f", t.PnL),
		)
	}
	table.Render()
}

// printSummary prints realized P&L and the three-scope drawdown snapshot
// (§4.2): bot-wide plus a breakdown per symbol and per strategy actually
// present in the window.
func printSummary(trades []domain.TradeRecord, initialBalance float64) {
	var totalPnL float64
	bySymbol := make(map[string][]domain.TradeRecord)
	byStrategy := make(map[string][]domain.TradeRecord)
	for _, t := range trades {
		totalPnL += t.PnL
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
		byStrategy[t.StrategyName] = append(byStrategy[t.StrategyName], t)
	}

	fmt.Printf("\nrealized P&L: $%.2f over %d trade(s)\n", totalPnL, len(trades))
	fmt.Printf("bot-wide drawdown: %.2f%%\n", risk.Drawdown(initialBalance, trades))

	if len(bySymbol) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Symbol", "Trades", "PnL", "Drawdown %")
		for symbol, symTrades := range bySymbol {
			var pnl float64
			for _, t := range symTrades {
				pnl += t.PnL
			}
			table.Append(symbol, fmt.Sprintf("%d", len(symTrades)), fmt.Sprintf("%.2f", pnl), fmt.Sprintf("%.2f", risk.Drawdown(initialBalance, symTrades)))
		}
		table.Render()
	}

	if len(byStrategy) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Strategy", "Trades", "PnL", "Drawdown %")
		for name, stratTrades := range byStrategy {
			var pnl float64
			for _, t := range stratTrades {
				pnl += t.PnL
			}
			table.Append(name, fmt.Sprintf("%d", len(stratTrades)), fmt.Sprintf("%.2f", pnl), fmt.Sprintf("%.2f", risk.Drawdown(initialBalance, stratTrades)))
		}
		table.Render()
	}
}
