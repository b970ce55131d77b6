package services

import (
	"strings"
	"testing"
)

func TestParseArtifacts(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantFiles   map[string]string
		wantSummary string
		wantErr     bool
	}{
		{
			name: "filename fences",
			text: "Intro line.\n\n```filename: index.html\n<h1>x</h1>\n```\n\n```filename: styles.css\nbody{}\n```\nOutro.",
			wantFiles: map[string]string{
				"index.html": "<h1>x</h1>\n",
				"styles.css": "body{}\n",
			},
			wantSummary: "Intro line.\n\n\nOutro.",
		},
		{
			name:      "filename line before fence",
			text:      "filename: script.js\n```js\nconsole.log(1)\n```",
			wantFiles: map[string]string{"script.js": "console.log(1)\n"},
		},
		{
			name: "language fallback",
			text: "```html\n<p>a</p>\n```\n```css\np{}\n```\n```javascript\nx()\n```\n```python\nprint()\n```",
			wantFiles: map[string]string{
				"index.html": "<p>a</p>\n",
				"styles.css": "p{}\n",
				"script.js":  "x()\n",
			},
		},
		{
			name:      "named blocks suppress fallback",
			text:      "```html\n<p>ignored</p>\n```\n```filename: app/main.js\nrun()\n```",
			wantFiles: map[string]string{"app/main.js": "run()\n"},
		},
		{
			name:      "unterminated block kept",
			text:      "```filename: index.html\n<p>cut",
			wantFiles: map[string]string{"index.html": "<p>cut\n"},
		},
		{
			name:      "decorated name",
			text:      "```filename: `./pages/index.html`\nok\n```",
			wantFiles: map[string]string{"pages/index.html": "ok\n"},
		},
		{
			name:        "no blocks",
			text:        "I cannot help with that.",
			wantFiles:   map[string]string{},
			wantSummary: "I cannot help with that.",
		},
		{name: "escaping path", text: "```filename: ../etc/passwd\nx\n```", wantErr: true},
		{name: "absolute path", text: "```filename: /etc/passwd\nx\n```", wantErr: true},
		{name: "drive path", text: "```filename: C:\\x.html\nx\n```", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, summary, err := parseArtifacts(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got files %v", files)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArtifacts: %v", err)
			}
			if len(files) != len(tt.wantFiles) {
				t.Fatalf("files = %v, want %v", files, tt.wantFiles)
			}
			for p, want := range tt.wantFiles {
				if files[p] != want {
					t.Errorf("files[%q] = %q, want %q", p, files[p], want)
				}
			}
			if tt.wantSummary != "" && summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", summary, tt.wantSummary)
			}
		})
	}
}

func TestParseArtifactsKeepsInnerFenceLanguage(t *testing.T) {
	text := "```filename: README.md\n# Title\n\n```sh\nmake\n```"
	files, _, err := parseArtifacts(text)
	if err != nil {
		t.Fatalf("parseArtifacts: %v", err)
	}
	// Only an exact ``` closes a block, so the inner opener stays in the file.
	if !strings.Contains(files["README.md"], "```sh") {
		t.Fatalf("README.md = %q", files["README.md"])
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(domainBrief("a page that says hello", 2, "has h1", "uses fetch"))
	if !strings.HasPrefix(p.User, "TASK: a page that says hello\n") {
		t.Fatalf("user prompt must start with the task line, got %q", p.User)
	}
	for _, want := range []string{"ROUND: 2", "1. has h1", "2. uses fetch", "```filename: <path>"} {
		if !strings.Contains(p.User, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	if p.System == "" {
		t.Error("expected a system prompt")
	}
}
