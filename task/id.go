package task

import (
	"fmt"
	"regexp"
	"time"
)

// idPattern matches TASK-<yyyy>-<mm>-<dd>-<nnn>.
var idPattern = regexp.MustCompile(`^TASK-\d{4}-\d{2}-\d{2}-\d{3,}$`)

// ValidID reports whether id has the stable TASK-<yyyy>-<mm>-<dd>-<nnn> shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// NewID formats a dated, sequenced task id for the given day and sequence
// number within that day.
func NewID(day time.Time, seq int) string {
	return fmt.Sprintf("TASK-%04d-%02d-%02d-%03d", day.Year(), day.Month(), day.Day(), seq)
}

// DatePrefix returns the "TASK-yyyy-mm-dd-" prefix for day, used by the store
// to find the next free sequence number for a given day.
func DatePrefix(day time.Time) string {
	return fmt.Sprintf("TASK-%04d-%02d-%02d-", day.Year(), day.Month(), day.Day())
}
