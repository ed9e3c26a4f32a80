package cmd

import (
	"fmt"
	"time"

	"github.com/petalvault/petalvault/internal/vault"
)

// Compact purges old, fully propagated tombstones and rewrites the
// vault file to reclaim space
func Compact(flagPath string, maxAgeDays int) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	maxAge := vault.DefaultTombstoneAge
	if maxAgeDays >= 0 {
		maxAge = time.Duration(maxAgeDays) * 24 * time.Hour
	}

	result, err := v.Compact(maxAge)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("✓ Compacted vault: purged %d entr%s and %d change record(s)\n",
		result.EntriesPurged, plural(result.EntriesPurged, "y", "ies"), result.RecordsPurged)
}
