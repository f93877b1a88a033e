package printer

import "fmt"

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// FormatBytes returns a human-readable byte size string.
// Examples: "0 B", "512 B", "1.5 KB", "700.0 MB", "10.0 GB".
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", max(bytes, 0))
	}

	size := float64(bytes) / 1024
	unit := 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}

	return fmt.Sprintf("%.1f %s", size, byteUnits[unit])
}
