package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"depot/internal/api"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func checkKind(check api.HealthCheck) statusKind {
	switch {
	case check.OK:
		return statusOK
	case check.Fatal:
		return statusError
	default:
		return statusWarn
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// formatWhen renders an API timestamp as a relative time. Unparseable
// or empty values pass through unchanged.
func formatWhen(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return humanize.Time(parsed)
}

func formatProgress(item api.DownloadItem) string {
	switch item.Status {
	case "completed":
		return "100%"
	case "queued":
		return "-"
	}
	if item.TotalBytes <= 0 {
		if item.BytesReceived > 0 {
			return formatSize(item.BytesReceived)
		}
		return "-"
	}
	return fmt.Sprintf("%.1f%%", item.Percent)
}

func downloadName(item api.DownloadItem) string {
	if item.Filename != "" {
		return item.Filename
	}
	if idx := strings.LastIndex(item.URL, "/"); idx >= 0 && idx+1 < len(item.URL) {
		return item.URL[idx+1:]
	}
	return item.URL
}

func buildDownloadRows(items []api.DownloadItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			truncate(downloadName(item), 40),
			item.Status,
			formatProgress(item),
			formatSize(item.TotalBytes),
			formatWhen(item.CreatedAt),
		})
	}
	return rows
}

func buildStatsRows(stats api.DownloadStats) [][]string {
	statuses := make([]string, 0, len(stats.Counts))
	for status, count := range stats.Counts {
		if count > 0 {
			statuses = append(statuses, status)
		}
	}
	sort.Strings(statuses)

	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{status, strconv.Itoa(stats.Counts[status])})
	}
	return rows
}

func buildLibraryRows(entries []api.LibraryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		titleID := entry.TitleID
		if titleID == "" {
			titleID = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			truncate(entry.Name, 42),
			titleID,
			entry.Kind,
			strconv.Itoa(entry.Version),
			formatSize(entry.Size),
		})
	}
	return rows
}

func buildSearchRows(results []api.SearchResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		titleID := result.TitleID
		if titleID == "" {
			titleID = "-"
		}
		rows = append(rows, []string{
			titleID,
			truncate(result.Name, 42),
			result.Publisher,
			formatSize(result.Size),
			yesNo(result.InLibrary),
		})
	}
	return rows
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
