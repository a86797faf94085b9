// Package importer turns text and markdown files into document pages.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ajitpratap0/entitext/internal/catalog"
	"github.com/ajitpratap0/entitext/internal/models"
)

// Options control how files are cut into pages.
type Options struct {
	// SplitHeadings starts a new page at every markdown heading of depth
	// HeadingDepth or shallower. The heading becomes the page title.
	SplitHeadings bool
	HeadingDepth  int

	// MaxRunes caps page length in code points. Zero means no cap.
	MaxRunes int
}

// DefaultOptions makes one page per file.
func DefaultOptions() Options {
	return Options{HeadingDepth: 2}
}

// Importer appends files to documents through the catalog.
type Importer struct {
	catalog *catalog.Service
	logger  *slog.Logger
}

// New creates an Importer.
func New(cat *catalog.Service, logger *slog.Logger) *Importer {
	return &Importer{catalog: cat, logger: logger}
}

// ImportFiles reads paths (files or directories) and appends their pages to
// the document. Files are taken in lexical path order; directories are
// walked for text and markdown files.
func (im *Importer) ImportFiles(ctx context.Context, documentID string, paths []string, opts Options) ([]models.Page, error) {
	files, err := expand(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no text or markdown files in %v", paths)
	}

	var inputs []catalog.PageInput
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, readErr := os.ReadFile(f)
		if readErr != nil {
			return nil, fmt.Errorf("reading %s: %w", f, readErr)
		}
		pages := Split(filepath.Base(f), string(data), opts)
		im.logger.Debug("split file", "file", f, "pages", len(pages))
		inputs = append(inputs, pages...)
	}

	out, err := im.catalog.AddPages(ctx, documentID, inputs)
	if err != nil {
		return out, err
	}
	im.logger.Info("imported files", "document_id", documentID, "files", len(files), "pages", len(out))
	return out, nil
}

// Split cuts one file's text into page inputs. Page text is taken verbatim
// from the file so that later annotations line up with what the user sees.
func Split(name, text string, opts Options) []catalog.PageInput {
	var sections []catalog.PageInput
	if opts.SplitHeadings && isMarkdown(name) {
		sections = splitHeadings(name, text, opts.HeadingDepth)
	} else {
		sections = []catalog.PageInput{{Title: name, Text: text}}
	}
	if opts.MaxRunes <= 0 {
		return sections
	}

	var out []catalog.PageInput
	for _, s := range sections {
		parts := splitBySize(s.Text, opts.MaxRunes)
		for i, p := range parts {
			title := s.Title
			if len(parts) > 1 {
				title = fmt.Sprintf("%s (%d/%d)", s.Title, i+1, len(parts))
			}
			out = append(out, catalog.PageInput{Title: title, Text: p})
		}
	}
	return out
}

// splitHeadings starts a section at every heading of depth <= maxDepth.
// Text before the first heading becomes a section titled after the file.
func splitHeadings(name, text string, maxDepth int) []catalog.PageInput {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	var out []catalog.PageInput
	title := name
	var body []string

	flush := func() {
		content := strings.Trim(strings.Join(body, "\n"), "\n")
		if strings.TrimSpace(content) != "" {
			out = append(out, catalog.PageInput{Title: title, Text: content})
		}
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		depth, heading, ok := parseHeader(line)
		if !ok || depth > maxDepth {
			body = append(body, line)
			continue
		}
		flush()
		title = heading
	}
	flush()
	return out
}

// parseHeader returns the heading depth, trimmed title, and true when the line
// is a markdown ATX heading (up to ####). Returns (0, "", false) otherwise.
func parseHeader(line string) (depth int, title string, ok bool) {
	for d := 4; d >= 1; d-- {
		prefix := strings.Repeat("#", d) + " "
		if strings.HasPrefix(line, prefix) {
			return d, strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return 0, "", false
}

// splitBySize cuts text into parts of at most maxRunes code points. Cuts fall
// after a blank line when one is in range, else after whitespace, else hard.
// Concatenating the parts yields text again.
func splitBySize(text string, maxRunes int) []string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var parts []string
	for len(runes) > maxRunes {
		cut := lastBreak(runes[:maxRunes])
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// lastBreak returns the cut position within window: just after the last
// paragraph break, else just after the last whitespace, else len(window).
func lastBreak(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == '\n' && window[i-1] == '\n' {
			return i + 1
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == ' ' || window[i] == '\n' || window[i] == '\t' {
			return i + 1
		}
	}
	return len(window)
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func isText(name string) bool {
	return isMarkdown(name) || strings.EqualFold(filepath.Ext(name), ".txt")
}

// expand resolves directories to the text and markdown files beneath them and
// returns every file in lexical order.
func expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() && isText(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
