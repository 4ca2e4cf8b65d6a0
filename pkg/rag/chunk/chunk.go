// Package chunk splits ingested document text into overlapping,
// sentence-aware chunks (C3), collects candidate files from configured
// document paths, and matches paths against them for the folder watcher.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Chunk is a single piece of text produced from a document, ordered by
// Index within the owning document.
type Chunk struct {
	Index   int
	Content string
}

// Params bounds the chunker: MaxChunkSize/MinChunkSize/Overlap are all
// measured in runes, matching the last-chunk exception and overlap-suffix
// rule described for the chunker.
type Params struct {
	MaxChunkSize int
	MinChunkSize int
	Overlap      int
}

// DefaultParams mirrors typical configuration defaults: 1000 character
// chunks, 100 character minimum, 200 character overlap.
func DefaultParams() Params {
	return Params{MaxChunkSize: 1000, MinChunkSize: 100, Overlap: 200}
}

func (p Params) sanitized() Params {
	if p.MaxChunkSize <= 0 {
		p.MaxChunkSize = 1000
	}
	if p.MinChunkSize < 0 {
		p.MinChunkSize = 0
	}
	if p.Overlap < 0 {
		p.Overlap = 0
	}
	if p.Overlap >= p.MaxChunkSize {
		p.Overlap = p.MaxChunkSize / 2
	}
	return p
}

// sentenceBoundaries matches the characters that terminate a sentence for
// chunking purposes. Deliberately simple: no abbreviation handling, since
// determinism (same input, same params, byte-identical output) matters
// more than linguistic accuracy here.
const sentenceBoundaries = ".!?"

// Processor implements the deterministic sentence-aware splitting
// algorithm: split text on sentence boundaries, greedily accumulate
// sentences into a buffer, and emit a chunk whenever the next sentence
// would push the buffer past MaxChunkSize. Each emitted chunk is prefixed
// with an overlap suffix taken from the tail of the previous chunk.
type Processor struct{}

func New() *Processor {
	return &Processor{}
}

// ChunkText splits text into sentence-aware overlapping chunks. Same input
// and params always yield byte-identical output.
func (p *Processor) ChunkText(text string, params Params) []Chunk {
	params = params.sanitized()

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var buf strings.Builder
	var prevTail string
	index := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		content := strings.TrimSpace(buf.String())
		if content != "" {
			content = terminate(content)
			chunks = append(chunks, Chunk{Index: index, Content: content})
			index++
			prevTail = overlapTail(content, params.Overlap)
		}
		buf.Reset()
		if prevTail != "" {
			buf.WriteString(prevTail)
			buf.WriteString(" ")
		}
	}

	for _, s := range sentences {
		candidateLen := runeLen(buf.String()) + runeLen(s) + 1
		if buf.Len() > 0 && candidateLen > params.MaxChunkSize && runeLen(strings.TrimSpace(buf.String())) >= params.MinChunkSize {
			flush()
		}
		buf.WriteString(s)
		buf.WriteString(" ")
	}

	// Trailing buffer is always emitted, even below MinChunkSize.
	if strings.TrimSpace(buf.String()) != "" {
		content := strings.TrimSpace(buf.String())
		content = terminate(content)
		chunks = append(chunks, Chunk{Index: index, Content: content})
	}

	return chunks
}

// splitSentences splits on '.', '!', '?' while keeping the terminator
// attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	for _, r := range text {
		cur.WriteRune(r)
		if strings.ContainsRune(sentenceBoundaries, r) {
			s := strings.TrimSpace(cur.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// overlapTail returns the last n runes of s, trimmed to a sentence-ish
// start where possible (falls back to a raw rune slice).
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[len(runes)-n:]))
}

func runeLen(s string) int {
	return len([]rune(s))
}

// terminate ensures the chunk ends with a sentence terminator, per the
// "terminated with a period" rule for emitted chunks.
func terminate(s string) string {
	if s == "" {
		return s
	}
	last := s[len(s)-1]
	if strings.ContainsRune(sentenceBoundaries, rune(last)) {
		return s
	}
	return s + "."
}

// FileHash computes the hex-encoded SHA-256 hash of a file's contents.
func (p *Processor) FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CollectFiles recursively collects all files referenced by paths, which
// may be literal paths, directories, or glob patterns. Paths that don't
// exist are silently skipped rather than producing an error, since the
// caller typically mixes watched directories with ad-hoc single files.
func (p *Processor) CollectFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, pattern := range paths {
		expanded, err := p.expandPattern(pattern)
		if err != nil {
			return nil, err
		}
		if len(expanded) == 0 {
			expanded = []string{pattern}
		}

		for _, entry := range expanded {
			normalized := normalizePath(entry)

			info, err := os.Stat(normalized)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("failed to stat %s: %w", entry, err)
			}

			if info.IsDir() {
				err := filepath.Walk(normalized, func(walked string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if info.IsDir() {
						return nil
					}
					filePath := normalizePath(walked)
					if !seen[filePath] {
						files = append(files, filePath)
						seen[filePath] = true
					}
					return nil
				})
				if err != nil {
					return nil, fmt.Errorf("failed to walk directory %s: %w", normalized, err)
				}
				continue
			}

			if !seen[normalized] {
				files = append(files, normalized)
				seen[normalized] = true
			}
		}
	}

	return files, nil
}

// Matches reports whether path matches any of the configured document
// paths or glob patterns, used by the folder watcher to filter events.
func (p *Processor) Matches(path string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return false, nil
	}

	cleanPath := normalizePath(path)

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		normalizedPattern := normalizePath(pattern)

		if hasGlob(pattern) {
			match, err := doublestar.PathMatch(normalizedPattern, cleanPath)
			if err != nil {
				return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			if match {
				return true, nil
			}
			continue
		}

		info, err := os.Stat(normalizedPattern)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, fmt.Errorf("failed to stat %s: %w", normalizedPattern, err)
		}

		if info.IsDir() {
			if cleanPath == normalizedPattern || strings.HasPrefix(cleanPath, normalizedPattern+string(os.PathSeparator)) {
				return true, nil
			}
			continue
		}

		if cleanPath == normalizedPattern {
			return true, nil
		}
	}

	return false, nil
}

func (p *Processor) expandPattern(pattern string) ([]string, error) {
	if !hasGlob(pattern) {
		return []string{normalizePath(pattern)}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	results := make([]string, 0, len(matches))
	for _, match := range matches {
		results = append(results, normalizePath(match))
	}

	return results, nil
}

func hasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

func normalizePath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(p)
}
