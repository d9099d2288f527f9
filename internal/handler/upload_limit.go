package handler

import (
	"fmt"
	"strconv"
)

// formatUploadLimit renders a byte limit for error messages: whole
// megabytes when the limit is at least one, otherwise kilobytes or bytes.
func formatUploadLimit(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes <= 0:
		return "0 B"
	case bytes >= mb:
		return strconv.FormatInt(bytes/mb, 10) + " MB"
	case bytes >= kb:
		return strconv.FormatInt(bytes/kb, 10) + " KB"
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
