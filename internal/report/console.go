package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/olekukonko/tablewriter"

	"volbot/internal/engine"
)

// Console renders a finished backtest as a human-readable summary.
type Console struct {
	out io.Writer
}

// NewConsole writes to stdout.
func NewConsole() *Console { return &Console{out: os.Stdout} }

// NewConsoleWriter writes to the given writer, for tests.
func NewConsoleWriter(w io.Writer) *Console { return &Console{out: w} }

// PrintResults renders the aggregate metrics and the per-trade table.
func (c *Console) PrintResults(results *engine.BacktestResults) {
	fmt.Fprintf(c.out, "\n=== BACKTEST RESULTS ===\n\n")

	pfLabel := fmt.Sprintf("%.2f", results.ProfitFactor)
	if math.IsInf(results.ProfitFactor, 1) {
		pfLabel = "INF"
	}

	fmt.Fprintf(c.out, "  Total trades:    %d (%d won / %d lost)\n",
		results.TotalTrades, results.WinningTrades, results.LosingTrades)
	fmt.Fprintf(c.out, "  Win rate:        %.1f%%\n", results.WinRate)
	fmt.Fprintf(c.out, "  Total P&L:       $%.2f\n", results.TotalPnL)
	fmt.Fprintf(c.out, "  Profit factor:   %s\n", pfLabel)
	fmt.Fprintf(c.out, "  Max drawdown:    $%.2f (%.1f%%)\n",
		results.MaxDrawdown, results.MaxDrawdownPct)
	fmt.Fprintf(c.out, "  Sharpe ratio:    %.2f\n", results.SharpeRatio)
	fmt.Fprintf(c.out, "  Avg win / loss:  $%.2f / $%.2f\n", results.AvgWin, results.AvgLoss)
	fmt.Fprintf(c.out, "  Avg days held:   %.1f\n\n", results.AvgDaysInTrade)

	if len(results.Trades) == 0 {
		fmt.Fprintln(c.out, "  No trades taken.")
		return
	}

	c.printTradeTable(results)
}

func (c *Console) printTradeTable(results *engine.BacktestResults) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Symbol", "Type", "Book", "Strikes", "Qty", "Entry", "Exit", "Days", "P&L", "Reason")

	for i, t := range results.Trades {
		partials := len(results.PartialCloses[t.ID])
		qty := fmt.Sprintf("%d", t.Contracts)
		if partials > 0 {
			qty = fmt.Sprintf("%d (%dp)", t.Contracts, partials)
		}

		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Symbol,
			string(t.SpreadType),
			string(t.BookType),
			fmt.Sprintf("%.0f/%.0f", t.ShortStrike, t.LongStrike),
			qty,
			t.EntryTime.Format("01-02"),
			t.ExitTime.Format("01-02"),
			fmt.Sprintf("%d", t.DaysInTrade),
			fmt.Sprintf("$%.2f", t.RealizedPnL),
			t.ExitReason,
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Qty (Np) = entry contracts with N tiered partial closes")
	fmt.Fprintln(c.out)
}
