package extract

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Format identifies how a file is encoded.
type Format string

const (
	FormatMarkdown  Format = "markdown"
	FormatMDX       Format = "mdx"
	FormatRST       Format = "rst"
	FormatAsciiDoc  Format = "asciidoc"
	FormatNotebook  Format = "notebook"
	FormatHTML      Format = "html"
	FormatPlainText Format = "text"
	FormatUnknown   Format = "unknown"
)

// FormatFromPath infers a format from a file extension.
func FormatFromPath(p string) Format {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".mdx":
		return FormatMDX
	case ".rst":
		return FormatRST
	case ".adoc", ".asciidoc":
		return FormatAsciiDoc
	case ".ipynb":
		return FormatNotebook
	case ".html", ".htm":
		return FormatHTML
	case ".txt":
		return FormatPlainText
	}
	return FormatUnknown
}

var (
	mdxImportExport = regexp.MustCompile(`(?m)^(import|export)\s.*$`)
	mdxComponent    = regexp.MustCompile(`</?[A-Z][A-Za-z0-9.]*(\s[^>]*)?/?>`)
	mdxExpression   = regexp.MustCompile(`(?m)^\{[^}\n]*\}\s*$`)
)

// mdxToMarkdown drops ESM statements, JSX components and bare expressions.
// Fenced code is left untouched.
func mdxToMarkdown(src string) string {
	return mapOutsideFences(src, func(chunk string) string {
		chunk = mdxImportExport.ReplaceAllString(chunk, "")
		chunk = mdxComponent.ReplaceAllString(chunk, "")
		return mdxExpression.ReplaceAllString(chunk, "")
	})
}

// mapOutsideFences applies fn to the text between fenced code blocks.
func mapOutsideFences(src string, fn func(string) string) string {
	lines := strings.Split(src, "\n")
	var out, pending []string
	inFence := false
	flush := func() {
		if len(pending) > 0 {
			out = append(out, fn(strings.Join(pending, "\n")))
			pending = nil
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if !inFence {
				flush()
			}
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		pending = append(pending, line)
	}
	flush()
	return strings.Join(out, "\n")
}

var (
	rstLink      = regexp.MustCompile("`([^`<]+?)\\s*<([^>]+)>`_{1,2}")
	rstRole      = regexp.MustCompile(":[a-z]+:`([^`]+)`")
	rstLiteral   = regexp.MustCompile("``([^`]+)``")
	rstDirective = regexp.MustCompile(`^\.\.\s+([a-zA-Z-]+)::\s*(.*)$`)
)

// rstToMarkdown converts reStructuredText section titles, code directives,
// literal blocks and hyperlinks to Markdown. Heading levels follow the order
// in which adornment styles first appear.
func rstToMarkdown(src string) string {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	levels := map[string]int{}
	var out []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		// Overlined title: adornment, text, adornment.
		if c, ok := rstAdornment(line); ok && i+2 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			if c2, ok := rstAdornment(lines[i+2]); ok && c2 == c {
				out = append(out, rstHeading(levels, "over"+string(c), lines[i+1]))
				i += 2
				continue
			}
		}

		// Underlined title: text, adornment at least as long.
		if _, isAdornment := rstAdornment(line); strings.TrimSpace(line) != "" && !isAdornment && i+1 < len(lines) {
			if c, ok := rstAdornment(lines[i+1]); ok &&
				len(strings.TrimSpace(lines[i+1])) >= len(strings.TrimSpace(line)) {
				out = append(out, rstHeading(levels, string(c), line))
				i++
				continue
			}
		}

		if m := rstDirective.FindStringSubmatch(strings.TrimSpace(line)); m != nil && !startsIndented(line) {
			switch m[1] {
			case "code", "code-block", "sourcecode":
				block, next := rstIndentedBlock(lines, i+1)
				out = append(out, "```"+strings.TrimSpace(m[2]), block, "```")
				i = next - 1
			default:
				// Other directives carry no prose; drop the directive and its body.
				_, next := rstIndentedBlock(lines, i+1)
				i = next - 1
			}
			continue
		}

		if strings.HasSuffix(strings.TrimRight(line, " "), "::") {
			prose := strings.TrimSuffix(strings.TrimRight(line, " "), ":")
			if strings.TrimSpace(prose) == ":" {
				prose = ""
			}
			if prose != "" {
				out = append(out, rstInline(prose))
			}
			block, next := rstIndentedBlock(lines, i+1)
			if block != "" {
				out = append(out, "", "```", block, "```")
				i = next - 1
			}
			continue
		}

		out = append(out, rstInline(line))
	}
	return strings.Join(out, "\n")
}

const rstAdornmentChars = "=-~^\"'`#*+:."

// rstAdornment reports whether line is a run of at least three identical
// punctuation characters, returning that character.
func rstAdornment(line string) (byte, bool) {
	t := strings.TrimRight(line, " \t")
	if len(t) < 3 || !strings.ContainsRune(rstAdornmentChars, rune(t[0])) {
		return 0, false
	}
	for i := 1; i < len(t); i++ {
		if t[i] != t[0] {
			return 0, false
		}
	}
	return t[0], true
}

func rstHeading(levels map[string]int, style, title string) string {
	lvl, ok := levels[style]
	if !ok {
		lvl = len(levels) + 1
		levels[style] = lvl
	}
	return "\n" + strings.Repeat("#", min(lvl, 6)) + " " + strings.TrimSpace(title) + "\n"
}

func rstInline(s string) string {
	s = rstLink.ReplaceAllString(s, "[$1]($2)")
	s = rstRole.ReplaceAllString(s, "`$1`")
	return rstLiteral.ReplaceAllString(s, "`$1`")
}

func startsIndented(s string) bool {
	return strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t")
}

// rstIndentedBlock collects the indented lines starting at i (skipping
// directive options and a leading blank line) and returns them dedented
// along with the index of the first line after the block.
func rstIndentedBlock(lines []string, i int) (string, int) {
	for i < len(lines) && startsIndented(lines[i]) && strings.HasPrefix(strings.TrimSpace(lines[i]), ":") {
		i++
	}
	var block []string
	for i < len(lines) {
		l := lines[i]
		if strings.TrimSpace(l) == "" {
			if len(block) > 0 && (i+1 >= len(lines) || !startsIndented(lines[i+1])) {
				break
			}
			if len(block) > 0 {
				block = append(block, "")
			}
			i++
			continue
		}
		if !startsIndented(l) {
			break
		}
		block = append(block, l)
		i++
	}
	return dedent(block), i
}

func dedent(lines []string) string {
	indent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) >= indent && indent > 0 {
			out[i] = l[indent:]
		} else {
			out[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(out, "\n")
}

var (
	adocHeading   = regexp.MustCompile(`^(={1,6})\s+(.+)$`)
	adocAttribute = regexp.MustCompile(`^:[\w-]+:.*$`)
	adocBlockAttr = regexp.MustCompile(`^\[[^\]]*\]$`)
	adocSource    = regexp.MustCompile(`^\[source(?:,\s*([\w+-]+))?[^\]]*\]$`)
	adocLink      = regexp.MustCompile(`(?:link:)?(https?://[^\s\[]+|[\w./-]+\.(?:adoc|html|md))\[([^\]]*)\]`)
	adocXref      = regexp.MustCompile(`<<([\w-]+)(?:,\s*([^>]+))?>>`)
)

// asciidocToMarkdown converts AsciiDoc titles, listing blocks, attributes and
// links to Markdown.
func asciidocToMarkdown(src string) string {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	var out []string
	lang := ""
	inListing := false
	delim := ""

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if inListing {
			if trimmed == delim {
				out = append(out, "```")
				inListing = false
				continue
			}
			out = append(out, line)
			continue
		}
		switch {
		case trimmed == "----" || trimmed == "....":
			out = append(out, "```"+lang)
			inListing = true
			delim = trimmed
			lang = ""
		case adocSource.MatchString(trimmed):
			m := adocSource.FindStringSubmatch(trimmed)
			lang = m[1]
		case adocBlockAttr.MatchString(trimmed), adocAttribute.MatchString(trimmed):
			// Block and document attributes carry no prose.
		case strings.HasPrefix(trimmed, "//"):
		default:
			if m := adocHeading.FindStringSubmatch(line); m != nil {
				out = append(out, strings.Repeat("#", len(m[1]))+" "+m[2])
				continue
			}
			line = adocLink.ReplaceAllString(line, "[$2]($1)")
			line = adocXref.ReplaceAllStringFunc(line, func(s string) string {
				m := adocXref.FindStringSubmatch(s)
				label := m[2]
				if label == "" {
					label = m[1]
				}
				return fmt.Sprintf("[%s](#%s)", label, m[1])
			})
			out = append(out, line)
		}
	}
	if inListing {
		out = append(out, "```")
	}
	return strings.Join(out, "\n")
}

type notebook struct {
	Cells    []notebookCell `json:"cells"`
	Metadata struct {
		KernelSpec struct {
			Language string `json:"language"`
		} `json:"kernelspec"`
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	} `json:"metadata"`
}

type notebookCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// notebookToMarkdown renders markdown cells as-is and code cells as fenced
// blocks. ok is false when the content is not a notebook.
func notebookToMarkdown(content []byte) (string, bool) {
	var nb notebook
	if err := json.Unmarshal(content, &nb); err != nil || nb.Cells == nil {
		return "", false
	}
	lang := nb.Metadata.LanguageInfo.Name
	if lang == "" {
		lang = nb.Metadata.KernelSpec.Language
	}
	if lang == "" {
		lang = "python"
	}

	var parts []string
	for _, c := range nb.Cells {
		src := cellSource(c.Source)
		if strings.TrimSpace(src) == "" {
			continue
		}
		switch c.CellType {
		case "markdown":
			parts = append(parts, src)
		case "code":
			parts = append(parts, "```"+lang+"\n"+strings.TrimRight(src, "\n")+"\n```")
		}
	}
	return strings.Join(parts, "\n\n"), true
}

// cellSource accepts both the string and the list-of-lines encodings.
func cellSource(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	return ""
}
