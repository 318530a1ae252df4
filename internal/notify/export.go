package notify

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"poizon-bot/internal/domain"
)

// Format is a user export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a raw format; empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("notify: unknown export format %q", raw)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

var exportColumns = []string{
	"telegram_id",
	"username",
	"first_name",
	"last_name",
	"registration_date",
	"last_activity",
	"total_calculations",
	"total_orders",
	"is_subscribed",
}

type exportedUser struct {
	TelegramID        int64  `json:"telegram_id"`
	Username          string `json:"username"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	RegistrationDate  string `json:"registration_date"`
	LastActivity      string `json:"last_activity"`
	TotalCalculations int    `json:"total_calculations"`
	TotalOrders       int    `json:"total_orders"`
	IsSubscribed      bool   `json:"is_subscribed"`
}

func toExported(u domain.User) exportedUser {
	return exportedUser{
		TelegramID:        u.TelegramID,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		RegistrationDate:  formatTime(u.RegisteredAt),
		LastActivity:      formatTime(u.LastActivity),
		TotalCalculations: u.TotalCalculations,
		TotalOrders:       u.TotalOrders,
		IsSubscribed:      u.Subscribed,
	}
}

func (e exportedUser) record() []string {
	return []string{
		strconv.FormatInt(e.TelegramID, 10),
		e.Username,
		e.FirstName,
		e.LastName,
		e.RegistrationDate,
		e.LastActivity,
		strconv.Itoa(e.TotalCalculations),
		strconv.Itoa(e.TotalOrders),
		strconv.FormatBool(e.IsSubscribed),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ExportUsers writes every user, newest registration first, to w.
func (n *Notifier) ExportUsers(ctx context.Context, w io.Writer, format Format) error {
	users, err := n.users.ListUsers(ctx, domain.UserFilter{})
	if err != nil {
		return fmt.Errorf("notify: export users: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].RegisteredAt.After(users[j].RegisteredAt)
	})

	rows := make([]exportedUser, 0, len(users))
	for _, u := range users {
		rows = append(rows, toExported(u))
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("notify: encode json export: %w", err)
		}
		return nil
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(exportColumns); err != nil {
			return fmt.Errorf("notify: write csv header: %w", err)
		}
		for _, r := range rows {
			if err := cw.Write(r.record()); err != nil {
				return fmt.Errorf("notify: write csv row: %w", err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("notify: flush csv export: %w", err)
		}
		return nil
	}
	return fmt.Errorf("notify: unknown export format %q", format)
}
