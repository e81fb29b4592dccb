// Package channels holds transport-facing helpers shared by channel
// adapters: message chunking for size-limited transports and send metrics.
package channels

import "strings"

// MaxMessageLength is Telegram's per-message character limit.
const MaxMessageLength = 4096

// SplitMessage splits text into chunks of at most maxLength characters.
// Within each window it breaks at the rightmost paragraph boundary, then the
// rightmost newline, then the rightmost space, then hard-cuts. Leading
// newlines of each subsequent chunk are trimmed.
func SplitMessage(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = MaxMessageLength
	}
	if len(text) <= maxLength {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if len(text) <= maxLength {
			chunks = append(chunks, text)
			break
		}

		window := text[:maxLength]
		splitIdx := strings.LastIndex(window, "\n\n")
		if splitIdx <= 0 {
			splitIdx = strings.LastIndex(window, "\n")
		}
		if splitIdx <= 0 {
			splitIdx = strings.LastIndex(window, " ")
		}
		if splitIdx <= 0 {
			splitIdx = maxLength
		}

		chunks = append(chunks, text[:splitIdx])
		text = strings.TrimLeft(text[splitIdx:], "\n")
	}
	return chunks
}
