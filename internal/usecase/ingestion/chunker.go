package ingestion

import (
	"strings"
	"unicode/utf8"
)

// ChunkSpan is one chunk of a document together with its position in the
// original text. Concatenating spans minus their overlaps reproduces the
// input exactly.
type ChunkSpan struct {
	Index           int
	Text            string
	Start           int
	End             int
	OverlapWithPrev int
}

type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// tableBlock marks a contiguous run of table-like lines by char offsets.
type tableBlock struct {
	start int
	end   int
}

// ChunkText splits text into overlapping spans. Boundaries prefer sentence
// ends and never land inside a detected table block; a chunk grows past its
// nominal size when needed to keep a table whole.
func (c *Chunker) ChunkText(text string) []ChunkSpan {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	blocks := detectTableBlocks(text)

	var chunks []ChunkSpan
	start := 0
	prevEnd := 0

	for start < len(text) {
		end := start + c.chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.adjustBoundary(text, start, end, blocks)
		}

		overlap := 0
		if len(chunks) > 0 {
			overlap = prevEnd - start
		}

		chunks = append(chunks, ChunkSpan{
			Index:           len(chunks),
			Text:            text[start:end],
			Start:           start,
			End:             end,
			OverlapWithPrev: overlap,
		})

		if end >= len(text) {
			break
		}

		prevEnd = end
		next := end - c.chunkOverlap
		if next <= start {
			next = start + 1
		}
		// an overlap start inside a table would put a chunk boundary
		// mid-table; snap it to the table end instead
		if b := blockContaining(blocks, next); b != nil && next > b.start {
			next = b.end
			if next > end {
				next = end
			}
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		if next >= len(text) {
			break
		}
		start = next
	}

	return chunks
}

// adjustBoundary backtracks to a sentence or line break, then pushes the
// boundary past any table block it would split.
func (c *Chunker) adjustBoundary(text string, start, end int, blocks []tableBlock) int {
	for i := end; i > start+c.chunkSize/2; i-- {
		ch := text[i-1]
		if ch == '.' || ch == '!' || ch == '?' || ch == '\n' {
			end = i
			break
		}
	}

	if b := blockContaining(blocks, end); b != nil && end > b.start && end < b.end {
		end = b.end
	}
	if end > len(text) {
		end = len(text)
	}
	// never cut through a multi-byte rune
	for end > start && end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

func blockContaining(blocks []tableBlock, pos int) *tableBlock {
	for i := range blocks {
		if pos > blocks[i].start && pos < blocks[i].end {
			return &blocks[i]
		}
	}
	return nil
}

// detectTableBlocks finds runs of two or more consecutive lines sharing a
// delimiter style and column count (pipe tables, TSV blocks).
func detectTableBlocks(text string) []tableBlock {
	var blocks []tableBlock

	type lineInfo struct {
		start int
		end   int // exclusive, includes trailing newline when present
		delim byte
		cols  int
	}

	var lines []lineInfo
	offset := 0
	for offset <= len(text) {
		nl := strings.IndexByte(text[offset:], '\n')
		var end int
		if nl < 0 {
			end = len(text)
		} else {
			end = offset + nl + 1
		}
		line := strings.TrimRight(text[offset:end], "\n")
		delim, cols := tableRowShape(line)
		lines = append(lines, lineInfo{start: offset, end: end, delim: delim, cols: cols})
		if nl < 0 {
			break
		}
		offset = end
	}

	runStart := -1
	for i := 0; i <= len(lines); i++ {
		inRun := i < len(lines) && lines[i].delim != 0 &&
			(runStart < 0 || (lines[i].delim == lines[runStart].delim && lines[i].cols == lines[runStart].cols))

		if inRun {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 && i-runStart >= 2 {
			blocks = append(blocks, tableBlock{start: lines[runStart].start, end: lines[i-1].end})
		}
		runStart = -1
		// a table line that broke a run may start a new one
		if i < len(lines) && lines[i].delim != 0 {
			runStart = i
		}
	}

	return blocks
}

// tableRowShape reports the delimiter and column count of a table-like line,
// or (0, 0) for ordinary prose.
func tableRowShape(line string) (byte, int) {
	if n := strings.Count(line, "|"); n >= 2 {
		return '|', n + 1
	}
	if n := strings.Count(line, "\t"); n >= 2 {
		return '\t', n + 1
	}
	return 0, 0
}
