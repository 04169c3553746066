package telegram

import (
	"fmt"
	"time"
)

// FormatCycleFailure builds the message sent when a pipeline cycle fails
// at the top level.
func FormatCycleFailure(appName string, at time.Time, err error) string {
	return fmt.Sprintf("🚨 *%s*\nPipeline cycle failed at `%s`\n```\n%v\n```",
		appName, at.UTC().Format(time.RFC3339), err)
}
