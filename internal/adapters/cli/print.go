package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/core"
)

func printWarehouses(w io.Writer, res *app.WarehouseListResult) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  %-5s %-12s %-28s %-8s %s\n", "ID", "CODE", "NAME", "STATUS", "CITY")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, wh := range res.Warehouses {
		fmt.Fprintf(w, "  %-5d %-12s %-28s %-8s %s\n", wh.ID, wh.Code, wh.Name, wh.Status, wh.City)
	}
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

func printSyncBins(w io.Writer, res *app.SyncBinsResult) {
	codes := make([]string, 0, len(res.Created))
	total := 0
	for code, n := range res.Created {
		codes = append(codes, code)
		total += n
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %-12s %d bin(s) created\n", code, res.Created[code])
	}
	fmt.Fprintf(w, "%d warehouse(s) checked, %d bin(s) created.\n", len(codes), total)
}

func printLocations(w io.Writer, res *app.LocationListResult) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  LOCATIONS — Warehouse %s\n", res.WarehouseCode)
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  %-6s %-9s %-16s %-24s %s\n", "ID", "TYPE", "CODE", "NAME", "STATUS")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, l := range res.Locations {
		fmt.Fprintf(w, "  %-6d %-9s %-16s %-24s %s\n", l.ID, l.Type, l.Label(), l.DisplayName, l.Status)
	}
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

func printStock(w io.Writer, res *app.StockResult) {
	fmt.Fprintln(w, strings.Repeat("=", 52))
	fmt.Fprintf(w, "  STOCK — %s / %s\n", res.WarehouseCode, res.Location.Label())
	fmt.Fprintln(w, strings.Repeat("=", 52))
	if len(res.Balances) == 0 {
		fmt.Fprintln(w, "  (empty)")
		fmt.Fprintln(w, strings.Repeat("=", 52))
		return
	}
	fmt.Fprintf(w, "  %-30s %15s\n", "ITEM", "QTY")
	fmt.Fprintln(w, strings.Repeat("-", 52))
	for _, b := range res.Balances {
		fmt.Fprintf(w, "  %-30s %15s\n", b.ItemID, b.Qty.String())
	}
	fmt.Fprintln(w, strings.Repeat("=", 52))
}

func printPutawayCandidates(w io.Writer, res *app.PutawayCandidatesResult) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "  PENDING PUTAWAY — Warehouse %s\n", res.WarehouseCode)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	if len(res.Candidates) == 0 {
		fmt.Fprintln(w, "  Nothing waiting in RETURN or RECEIVE.")
		fmt.Fprintln(w, strings.Repeat("=", 80))
		return
	}
	fmt.Fprintf(w, "  %-8s %-16s %-14s %-20s %8s  %s\n", "BIN", "ITEM", "SKU", "NAME", "QTY", "LAST MOVED")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, c := range res.Candidates {
		fmt.Fprintf(w, "  %-8s %-16s %-14s %-20s %8s  %s\n",
			c.Bin, c.ItemID, c.SKU, truncate(c.Name, 20), c.Qty.String(), c.LastMovedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func printBatch(w io.Writer, res *app.BatchResult) {
	fmt.Fprintln(w, strings.Repeat("=", 88))
	fmt.Fprintf(w, "  BATCH %s:%s — Warehouse %s\n", res.RefModel, res.RefID, res.WarehouseCode)
	fmt.Fprintln(w, strings.Repeat("=", 88))
	fmt.Fprintf(w, "  %-8s %-19s %-6s %-16s %10s  %-20s %s\n", "ID", "TIME", "LOC", "ITEM", "DELTA", "TYPE", "MEMO")
	fmt.Fprintln(w, strings.Repeat("-", 88))
	for _, e := range res.Entries {
		fmt.Fprintf(w, "  %-8d %-19s %-6d %-16s %10s  %-20s %s\n",
			e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.LocationID, e.ItemID, e.QtyDelta.String(), e.MovementType, e.Memo)
	}
	fmt.Fprintln(w, strings.Repeat("=", 88))
}

func printMoveResult(w io.Writer, res *app.MoveResult) {
	if res.Duplicate {
		fmt.Fprintf(w, "Batch %s was already posted; nothing written.\n", res.BatchRef)
		return
	}
	fmt.Fprintf(w, "Moved %d of %d item(s), %s unit(s) in warehouse %s.\n",
		res.Lines, res.Lines+len(res.Errors), res.TotalQty.String(), res.WarehouseCode)
	if res.Posted > 0 {
		fmt.Fprintf(w, "Batch: %s (%d ledger rows)\n", res.BatchRef, res.Posted)
	}
	items := make([]string, 0, len(res.Errors))
	for item := range res.Errors {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		fmt.Fprintf(w, "  %-16s %s\n", item, res.Errors[item])
	}
}

func printPutawayResult(w io.Writer, res *app.PutawayResult) {
	if res.Duplicate {
		fmt.Fprintf(w, "Batch %s was already posted; nothing written.\n", res.BatchRef)
		return
	}
	fmt.Fprintf(w, "Posted %d action(s), %s unit(s), %d ledger rows in warehouse %s.\n",
		res.PostedCount, res.TotalQty.String(), res.RowsWritten, res.WarehouseCode)
	fmt.Fprintf(w, "Batch: %s\n", res.BatchRef)
}

func printReport(w io.Writer, r *core.ReconcileReport) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  %s%s\n", strings.ToUpper(r.Job), mode)
	fmt.Fprintln(w, strings.Repeat("=", 72))
	for _, wr := range r.Warehouses {
		fmt.Fprintf(w, "  Warehouse %s", wr.WarehouseCode)
		if wr.BatchRef != "" {
			fmt.Fprintf(w, "  batch %s", wr.BatchRef)
		}
		fmt.Fprintln(w)
		if wr.Note != "" {
			fmt.Fprintf(w, "    note: %s\n", wr.Note)
		}
		for _, a := range wr.Adjustments {
			fmt.Fprintf(w, "    %-16s %-15s -> %-15s %12s\n", a.ItemID, binLabel(a.From), binLabel(a.To), a.Qty.String())
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintf(w, "  %d warehouse(s), %s unit(s), %d ledger rows posted\n", len(r.Warehouses), r.TotalQty().String(), r.RowsPosted())
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

func printAudit(w io.Writer, res *app.AuditResult, anomaliesOnly bool) {
	batches := res.Batches
	if anomaliesOnly {
		batches = res.Anomalous()
	}
	fmt.Fprintln(w, strings.Repeat("=", 96))
	fmt.Fprintf(w, "  BATCH AUDIT — Warehouse %s\n", res.WarehouseCode)
	fmt.Fprintln(w, strings.Repeat("=", 96))
	fmt.Fprintf(w, "  %-26s %-30s %5s %10s  %-16s %s\n", "MODEL", "REF", "ROWS", "NET", "LAST", "ANOMALIES")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, b := range batches {
		fmt.Fprintf(w, "  %-26s %-30s %5d %10s  %-16s %s\n",
			truncate(b.RefModel, 26), truncate(b.RefID, 30), b.Rows, b.NetQty.String(),
			b.LastAt.Format("2006-01-02 15:04"), strings.Join(b.Anomalies, ","))
	}
	fmt.Fprintln(w, strings.Repeat("=", 96))
	fmt.Fprintf(w, "  %d batch(es), %d with anomalies\n", len(res.Batches), len(res.Anomalous()))
}

// binLabel renders an empty subtype as the outside world.
func binLabel(s core.LocationSubtype) string {
	if s == "" {
		return "(outside)"
	}
	return string(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
