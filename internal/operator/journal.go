package operator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// TransferArchiver exports one day of the transfer journal.
type TransferArchiver interface {
	ArchiveTransfers(ctx context.Context, day time.Time, transfers []domain.Transfer) (int64, error)
}

// ExportJournal archives every transfer recorded on day (UTC).
func (o *Operator) ExportJournal(ctx context.Context, day time.Time) (int64, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24*time.Hour - time.Nanosecond)
	transfers, err := o.deps.Ledger.Transfers(ctx, "", domain.ListOpts{Since: &start, Until: &end})
	if err != nil {
		return 0, fmt.Errorf("operator: list transfers for %s: %w", start.Format(time.DateOnly), err)
	}
	n, err := o.deps.Journal.ArchiveTransfers(ctx, start, transfers)
	if err != nil {
		return 0, fmt.Errorf("operator: archive transfers for %s: %w", start.Format(time.DateOnly), err)
	}
	o.audit(ctx, "operator.journal", map[string]any{"day": start.Format(time.DateOnly), "count": n})
	return n, nil
}

// runJournalCron exports the previous day's journal each time the 5-field
// cron expression fires.
func (o *Operator) runJournalCron(ctx context.Context, expr string) error {
	for {
		next, err := nextCronTime(expr, o.now())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", expr, err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			day := o.now().Add(-24 * time.Hour)
			n, err := o.ExportJournal(ctx, day)
			if err != nil {
				o.fail(ctx, "journal", domain.RoundKey{}, err)
				continue
			}
			o.logger.InfoContext(ctx, "operator: journal exported",
				slog.String("day", day.Format(time.DateOnly)),
				slog.Int64("count", n),
			)
		}
	}
}

// cronField matches one field; wildcard matches anything.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(v int) bool {
	return f.wildcard || slices.Contains(f.values, v)
}

func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	var f cronField
	for _, p := range strings.Split(field, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		if v < lo || v > hi {
			return cronField{}, fmt.Errorf("cron field value %d outside [%d, %d]", v, lo, hi)
		}
		f.values = append(f.values, v)
	}
	return f, nil
}

// cronSpec is minute, hour, day of month, month, day of week.
type cronSpec [5]cronField

var cronBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

func parseCron(expr string) (cronSpec, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSpec{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	var spec cronSpec
	for i, field := range fields {
		f, err := parseCronField(field, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return cronSpec{}, err
		}
		spec[i] = f
	}
	return spec, nil
}

func (c cronSpec) matches(t time.Time) bool {
	return c[0].matches(t.Minute()) &&
		c[1].matches(t.Hour()) &&
		c[2].matches(t.Day()) &&
		c[3].matches(int(t.Month())) &&
		c[4].matches(int(t.Weekday()))
}

// nextCronTime searches minute by minute, up to a year ahead, for the next
// time after `after` that matches expr.
func nextCronTime(expr string, after time.Time) (time.Time, error) {
	spec, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if spec.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", expr)
}
