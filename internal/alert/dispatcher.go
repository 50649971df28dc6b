// Package alert delivers community-deletion notifications through an ordered
// chain of messaging channels. The first successful channel short-circuits the
// chain; if every channel fails the caller leaves the sticky alert flag unset
// so a later run retries.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// DeletionInfo describes a confirmed community deletion.
type DeletionInfo struct {
	CommunityID      string
	Name             string
	MemberCount      int
	LinkedTokenMints []string
	DetectedAt       time.Time
}

// Dispatcher fans a deletion notice across channels in priority order.
type Dispatcher struct {
	channels []Channel
	log      *slog.Logger
}

// NewDispatcher builds a dispatcher. Channel order is delivery priority.
func NewDispatcher(log *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, log: log}
}

// NotifyDeletion attempts delivery through each channel in order and returns
// true on the first success. A false return means every channel failed and the
// notification must be retried by a future run.
func (d *Dispatcher) NotifyDeletion(ctx context.Context, info DeletionInfo) bool {
	text := formatDeletion(info)
	for _, ch := range d.channels {
		if err := ch.Send(ctx, text); err != nil {
			d.log.Warn("alert channel failed",
				"channel", ch.Name(), "community", info.CommunityID, "err", err)
			continue
		}
		d.log.Info("deletion alert delivered",
			"channel", ch.Name(), "community", info.CommunityID)
		return true
	}
	d.log.Error("all alert channels failed", "community", info.CommunityID)
	return false
}

func formatDeletion(info DeletionInfo) string {
	name := info.Name
	if name == "" {
		name = info.CommunityID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Community deleted: %s (id %s)\n", name, info.CommunityID)
	fmt.Fprintf(&b, "Last known member count: %d\n", info.MemberCount)
	if len(info.LinkedTokenMints) > 0 {
		fmt.Fprintf(&b, "Linked tokens: %s\n", strings.Join(info.LinkedTokenMints, ", "))
	}
	fmt.Fprintf(&b, "Detected at: %s", info.DetectedAt.UTC().Format(time.RFC3339))
	return b.String()
}
