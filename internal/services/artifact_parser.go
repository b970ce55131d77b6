package services

import (
	"bufio"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	filenameFence = regexp.MustCompile("^```\\s*filename:\\s*(.+?)\\s*$")
	filenameLine  = regexp.MustCompile(`^filename:\s*(.+?)\s*$`)
	openFence     = regexp.MustCompile("^```\\s*([A-Za-z0-9_+-]*)\\s*$")
)

// fallbackNames maps fence languages to paths when the oracle ignores the filename protocol.
var fallbackNames = map[string]string{
	"html":       "index.html",
	"css":        "styles.css",
	"js":         "script.js",
	"javascript": "script.js",
}

type block struct {
	name string
	lang string
	body []string
}

// parseArtifacts splits completion text into files and a summary. Named blocks win; the
// language-tagged fallback is used only when no named block was found.
func parseArtifacts(text string) (map[string]string, string, error) {
	var (
		named     []block
		anonymous []block
		summary   []string
		cur       *block
		pending   string
	)

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if cur != nil {
			if trimmed == "```" {
				if cur.name != "" {
					named = append(named, *cur)
				} else {
					anonymous = append(anonymous, *cur)
				}
				cur = nil
				continue
			}
			cur.body = append(cur.body, line)
			continue
		}

		if m := filenameFence.FindStringSubmatch(trimmed); m != nil {
			cur = &block{name: m[1]}
			pending = ""
			continue
		}
		if m := openFence.FindStringSubmatch(trimmed); m != nil {
			cur = &block{name: pending, lang: strings.ToLower(m[1])}
			pending = ""
			continue
		}
		if m := filenameLine.FindStringSubmatch(trimmed); m != nil {
			pending = m[1]
			continue
		}
		if trimmed == "" && pending != "" {
			continue
		}
		if pending != "" {
			summary = append(summary, "filename: "+pending)
			pending = ""
		}
		summary = append(summary, line)
	}
	if err := sc.Err(); err != nil {
		return nil, "", err
	}
	// An unterminated block still counts; models often drop the final fence.
	if cur != nil {
		if cur.name != "" {
			named = append(named, *cur)
		} else {
			anonymous = append(anonymous, *cur)
		}
	}

	files := map[string]string{}
	for _, b := range named {
		p, err := cleanArtifactPath(b.name)
		if err != nil {
			return nil, "", err
		}
		files[p] = fileContent(b.body)
	}
	if len(files) == 0 {
		for _, b := range anonymous {
			p, ok := fallbackNames[b.lang]
			if !ok {
				continue
			}
			if _, dup := files[p]; dup {
				continue
			}
			files[p] = fileContent(b.body)
		}
	}

	return files, strings.TrimSpace(strings.Join(summary, "\n")), nil
}

func fileContent(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}

// cleanArtifactPath strips decoration models put around names and rejects paths that would
// land outside the repository root.
func cleanArtifactPath(raw string) (string, error) {
	name := strings.Trim(strings.TrimSpace(raw), "`'\"[]<>*")
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	if strings.HasPrefix(name, "/") || (len(name) > 1 && name[1] == ':') {
		return "", fmt.Errorf("unsafe path %q: absolute", raw)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fmt.Errorf("unsafe path %q: escapes repository root", raw)
		}
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", fmt.Errorf("empty file name")
	}
	return cleaned, nil
}
