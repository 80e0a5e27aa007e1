package job

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a job identifier made of the current unix time in
// milliseconds and a random suffix.
func NewID() string {
	return newIDAt(time.Now())
}

func newIDAt(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strconv.FormatInt(t.UnixMilli(), 10) + "-" + suffix
}
