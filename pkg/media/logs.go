package media

import (
	"fmt"
	"os"
	"unicode/utf8"
)

// MaxMessageLength is the longest text Telegram accepts in one message.
const MaxMessageLength = 4096

type LogReader struct {
	path string
}

func NewLogReader(path string) *LogReader {
	return &LogReader{path: path}
}

// Read returns the file contents cut to fit a single message.
func (r *LogReader) Read() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", r.path, err)
	}
	return truncate(string(data), MaxMessageLength), nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
