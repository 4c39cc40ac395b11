package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"digest/internal/tasks"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiBlue   = "\x1b[34m"
)

func statusColor(status tasks.Status) string {
	switch status {
	case tasks.StatusCompleted:
		return ansiGreen
	case tasks.StatusUnchanged:
		return ansiBlue
	case tasks.StatusFailed:
		return ansiRed
	case tasks.StatusSummarizing, tasks.StatusNotifying:
		return ansiYellow
	default:
		return ""
	}
}

func renderStatus(status tasks.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	color := statusColor(status)
	if color == "" {
		return string(status)
	}
	return color + string(status) + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
