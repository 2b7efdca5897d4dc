package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// parseMetadata converts "name=value" lines into metadata pairs.
func parseMetadata(lines []string) ([]models.Metadata, error) {
	md := make([]models.Metadata, 0, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid metadata %q, expected name=value", line)
		}
		md = append(md, models.Metadata{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return md, nil
}

// formatEntry renders one index row for the list command.
func formatEntry(e models.Entry, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s", e.ID, e.Label)
	if e.ExpiresAt != nil {
		if e.Expired(now) {
			sb.WriteString("  (expired)")
		} else {
			fmt.Fprintf(&sb, "  (expires %s)", e.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
	}
	return sb.String()
}
