// Package sendinput injects text into whatever window last received OS
// focus (normally the terminal the Focus Resolver just switched to),
// followed by an Enter keypress — the "let the indicator reply on the
// agent's behalf" affordance. The real Win32 SendInput call lives in
// sendinput_windows.go; every other GOOS gets a stub that always errors,
// matching how internal/focus splits platform-specific window control.
package sendinput

import (
	"fmt"
	"strings"
)

// chunkSize bounds how many characters are queued into one SendInput call;
// larger batches risk overflowing the input buffer on some receivers.
const chunkSize = 100

// interChunkDelayMillis is only applied between chunks of a multi-chunk
// send, never after the last one.
const interChunkDelayMillis = 10

// preEnterDelayMillis gives the receiving window time to process the text
// before Enter arrives, so it isn't swallowed mid-render.
const preEnterDelayMillis = 50

// cleanText collapses the message to what SendInput should actually type:
// CR stripped, LF turned into a space (Enter is sent separately and is
// what actually submits), and leading/trailing whitespace trimmed.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

// chunkRunes splits text into chunkSize-rune groups, preserving full
// Unicode code points (callers further split each group into UTF-16 code
// units, which is where surrogate pairs are produced).
func chunkRunes(text string, size int) [][]rune {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var chunks [][]rune
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, runes[i:end])
	}
	return chunks
}

var errEmptyMessage = fmt.Errorf("sendinput: empty message")
