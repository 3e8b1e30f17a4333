package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// NotifyReportFlagged alerts the configured editor addresses that a quality
// report was flagged for human review. Delivery failures are logged by Send;
// flag alerts never fail the scoring pass that raised them.
func (d *Dispatcher) NotifyReportFlagged(ctx context.Context, report *models.QualityReport, flags []string) {
	if len(d.cfg.SummaryRecipients) == 0 {
		return
	}

	subject := fmt.Sprintf("Review %d flagged for editor review", report.ReviewID)
	body := fmt.Sprintf(
		"Quality analysis flagged review %d for human attention.\n\nFlags: %s\n",
		report.ReviewID, strings.Join(flags, ", "),
	)

	for _, recipient := range d.cfg.SummaryRecipients {
		req := &Request{
			Channels: []string{ChannelEmail},
			Priority: PriorityHigh,
			Email:    recipient,
			Subject:  subject,
			Body:     body,
			Type:     "action_required",
		}
		if _, err := d.Send(ctx, req); err != nil {
			d.log.Error().Err(err).Str("recipient", recipient).Msg("Failed to send flag alert")
		}
	}
}
