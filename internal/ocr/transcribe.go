package ocr

import (
	"strings"

	"github.com/zombor/invoice-extractor/internal/extraction"
)

// transcribePrompt is the shared prompt used by the vision model engines.
// The models only read the page; field extraction stays in the pipeline.
const transcribePrompt = `Transcribe all text on this invoice or receipt exactly as printed.

Rules:
- Keep the original line breaks and the top-to-bottom, left-to-right reading order
- Put each table row on its own line with its cells separated by single spaces
- Copy numbers, dates and currency symbols character for character; do not reformat them
- Do not translate, summarize, correct or explain anything
- Do not use markdown or code blocks
- If the page has no readable text, return an empty response`

// transcriptDocument wraps a model reply in a RawDocument. Vision models
// report no confidence, so the pipeline falls back to its neutral value.
func transcriptDocument(reply string) *extraction.RawDocument {
	return &extraction.RawDocument{FullText: cleanTranscript(reply)}
}

// cleanTranscript strips markdown fences models add despite the prompt
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.ContainsAny(text[:i], " \t") {
		// drop a language tag such as ```text
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
