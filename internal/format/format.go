// Package format turns a CloudMailin notification into Discord-sized
// message text.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/mailin"
)

// MessageLimit is Discord's hard per-message character limit.
const MessageLimit = 2000

// separator sits between the header block and the body text.
const separator = "\n\n"

// markerReserve is the space held back in every message for the worst-case
// part marker.
const markerReserve = len("[part 999/999]\n")

// splitCutset are the whitespace characters a chunk boundary may land on.
const splitCutset = " \n\t"

// Format renders a notification as an ordered sequence of messages, each at
// most MessageLimit characters. The result always has at least one element.
// Bodies that overflow a single message are split on word boundaries into
// numbered parts; the header block is never repeated and never split.
//
// Format is pure: identical input always yields identical output.
func Format(p *mailin.Payload) []string {
	header := headerBlock(p)
	body := p.Body()

	if body == "" {
		return []string{truncate(header, MessageLimit)}
	}

	prefix := ""
	firstLimit := MessageLimit - markerReserve
	if header != "" {
		firstLimit = MessageLimit - len(header) - len(separator) - markerReserve
		if firstLimit <= 0 {
			// Degenerate case: the header alone fills the message. The
			// header wins over any body content.
			return []string{truncate(header, MessageLimit)}
		}
		prefix = header + separator
	}

	chunks := splitBody(body, firstLimit, MessageLimit-markerReserve)
	if len(chunks) == 1 {
		return []string{prefix + chunks[0]}
	}

	messages := make([]string, len(chunks))
	for i, chunk := range chunks {
		marker := fmt.Sprintf("[part %d/%d]\n", i+1, len(chunks))
		if i == 0 {
			messages[i] = prefix + marker + chunk
		} else {
			messages[i] = marker + chunk
		}
	}
	return messages
}

// headerBlock renders the fixed-order header lines, omitting any line whose
// source field is absent. Attachment names are listed only when every
// attachment has a usable file name; otherwise the line carries the count
// alone.
func headerBlock(p *mailin.Payload) string {
	var lines []string

	if v := p.From(); v != "" {
		lines = append(lines, "From: "+v)
	}
	if v := p.Subject(); v != "" {
		lines = append(lines, "Subject: "+v)
	}
	if v := p.Date(); v != "" {
		lines = append(lines, "Date: "+v)
	}
	if n := len(p.Attachments); n > 0 {
		line := fmt.Sprintf("Attachments: %d", n)
		if names, ok := attachmentNames(p.Attachments); ok {
			line += " (" + strings.Join(names, ", ") + ")"
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// attachmentNames returns all attachment file names and whether every
// attachment had one.
func attachmentNames(attachments []mailin.Attachment) ([]string, bool) {
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		if a.FileName == "" {
			return nil, false
		}
		names = append(names, a.FileName)
	}
	return names, true
}

// splitBody cuts body into consecutive chunks, the first at most firstLimit
// bytes and the rest at most restLimit. Each cut scans backward from the
// size boundary to the nearest whitespace; the whitespace around a soft cut
// is trimmed away. When no whitespace exists before the boundary the cut is
// made at the boundary, backed up to the nearest rune start so no UTF-8
// sequence is torn, and the raw slices are kept so the chunks concatenate
// back to the original run of text.
func splitBody(body string, firstLimit, restLimit int) []string {
	var chunks []string

	limit := firstLimit
	remaining := body
	for len(remaining) > limit {
		if i := strings.LastIndexAny(remaining[:limit], splitCutset); i >= 0 {
			if chunk := strings.TrimRight(remaining[:i], splitCutset); chunk != "" {
				chunks = append(chunks, chunk)
			}
			remaining = strings.TrimLeft(remaining[i:], splitCutset)
		} else {
			cut := runeCut(remaining, limit)
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, remaining[:cut])
			remaining = remaining[cut:]
		}
		limit = restLimit
	}

	if len(remaining) > 0 || len(chunks) == 0 {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// truncate hard-cuts s to at most n bytes, never inside a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:runeCut(s, n)]
}

// runeCut returns the largest cut index at most n that lands on a rune
// start, so slicing s[:cut] yields valid UTF-8 for valid input.
func runeCut(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
