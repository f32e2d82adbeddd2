package moderation

import "time"

// TimestampLayout is fixed width so lexical order of stored values equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(value string) (time.Time, error) {
	return time.Parse(TimestampLayout, value)
}
