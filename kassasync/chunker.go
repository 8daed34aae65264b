package kassasync

import (
	"context"
	"fmt"
	"time"
)

// Window is one inclusive date span sent to the receipts endpoint. KassaCloud
// rejects ranges wider than a few days, so wide requests are split here.
type Window struct {
	From time.Time
	To   time.Time
}

// receiptWindows splits [from, to] into consecutive inclusive windows of at
// most days days. Windows never overlap and never leave gaps; the last window
// is clipped to to.
func receiptWindows(from, to time.Time, days int) []Window {
	if days < 1 {
		days = 1
	}
	var windows []Window
	for cursor := from; !cursor.After(to); {
		end := cursor.AddDate(0, 0, days-1)
		if end.After(to) {
			end = to
		}
		windows = append(windows, Window{From: cursor, To: end})
		cursor = end.AddDate(0, 0, 1)
	}
	return windows
}

// ImportReceiptsChunked runs one receipts import per window, sequentially and
// in chronological order. Mapping warnings accumulate across windows; the
// first fetch error stops the loop and is returned together with the count of
// receipts already written, so a partial run is visible as such.
func (imp *Importer) ImportReceiptsChunked(ctx context.Context, restaurantID string, from, to time.Time, salesPointID string, apiKey string) ImportResult {
	total := ImportResult{}
	for _, w := range receiptWindows(from, to, imp.windowDays) {
		if err := ctx.Err(); err != nil {
			total.Err = err
			break
		}

		p := ReceiptParams{
			DatetimeFrom: DateOf(w.From),
			DatetimeTo:   DateOf(w.To),
		}
		if salesPointID != "" {
			p.IdsSalesPoint = []string{salesPointID}
		}
		res := imp.ImportReceipts(ctx, restaurantID, p, apiKey)
		total.Count += res.Count
		total.Warnings = append(total.Warnings, res.Warnings...)
		if res.Err != nil {
			total.Err = res.Err
			break
		}
	}
	if total.Err == nil {
		total.Message = fmt.Sprintf("imported %d receipts", total.Count)
	}
	return total
}
