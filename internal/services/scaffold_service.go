package services

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"github.com/osvaldoandrade/autodeploy/pkg/domain"
	"github.com/yuin/goldmark"
)

const (
	WorkflowPath   = ".github/workflows/ci.yml"
	ChecksPagePath = "test.html"
)

var readmeTemplate = template.Must(template.New("readme").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`# {{.RepoName}}

{{.Task}}
{{- if .Summary}}

## Summary

{{.Summary}}
{{- end}}
{{- if .Checks}}

## Requirements

{{range $i, $c := .Checks}}{{inc $i}}. {{$c}}
{{end}}
{{- end}}

## Usage

Open ` + "`index.html`" + ` in a browser, or visit the GitHub Pages site for this repository.
{{- if .Checks}}
Open ` + "`test.html`" + ` to walk through the requirements by hand.
{{- end}}

## License

MIT
`))

var licenseTemplate = template.Must(template.New("license").Parse(`MIT License

Copyright (c) {{.Year}} {{.Holder}}

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
`))

// The site is served by Pages from the branch, so the workflow only checks the files.
var workflowTemplate = template.Must(template.New("workflow").Delims("[[", "]]").Parse(`name: CI

on:
  push:
    branches: [ [[.Branch]] ]
  pull_request:
    branches: [ [[.Branch]] ]

permissions:
  contents: read

jobs:
  check:
    runs-on: ubuntu-latest
    steps:
      - name: Checkout
        uses: actions/checkout@v4

      - name: Setup Node.js
        uses: actions/setup-node@v4
        with:
          node-version: '20'

      - name: Validate HTML
        run: |
          status=0
          for file in $(find . -name '*.html' -not -path './.git/*'); do
            if grep -qi "<html\|<!doctype" "$file"; then
              echo "ok $file"
            else
              echo "missing html root in $file"
              status=1
            fi
          done
          exit $status

      - name: Check JavaScript syntax
        run: |
          for file in $(find . -name '*.js' -not -path './.git/*' -not -path './node_modules/*'); do
            node --check "$file"
          done

      - name: Run tests
        run: |
          if [ -f package.json ]; then
            npm ci && npm test --if-present
          else
            echo "no package.json; [[.ChecksHint]]"
          fi
`))

// ScaffoldService produces the repository files every deployment carries besides the
// generated site.
type ScaffoldService interface {
	Files(brief domain.TaskBrief, repoName, summary string) (map[string]string, error)
}

type scaffoldService struct {
	holder string
	now    func() time.Time
	md     goldmark.Markdown
}

func NewScaffoldService(licenseHolder string, now func() time.Time) ScaffoldService {
	if now == nil {
		now = time.Now
	}
	return &scaffoldService{holder: licenseHolder, now: now, md: goldmark.New()}
}

func (s *scaffoldService) Files(brief domain.TaskBrief, repoName, summary string) (map[string]string, error) {
	var readme bytes.Buffer
	if err := readmeTemplate.Execute(&readme, map[string]any{
		"RepoName": repoName,
		"Task":     brief.Task,
		"Summary":  summary,
		"Checks":   brief.Checks,
	}); err != nil {
		return nil, err
	}

	var license bytes.Buffer
	if err := licenseTemplate.Execute(&license, map[string]any{
		"Year":   s.now().Year(),
		"Holder": s.holder,
	}); err != nil {
		return nil, err
	}

	hint := "no automated tests"
	if len(brief.Checks) > 0 {
		hint = "open " + ChecksPagePath + " to verify the requirements"
	}
	var workflow bytes.Buffer
	if err := workflowTemplate.Execute(&workflow, map[string]any{
		"Branch":     "main",
		"ChecksHint": hint,
	}); err != nil {
		return nil, err
	}

	files := map[string]string{
		"README.md":  readme.String(),
		"LICENSE":    license.String(),
		WorkflowPath: workflow.String(),
	}
	if len(brief.Checks) > 0 {
		page, err := s.checksPage(repoName, brief)
		if err != nil {
			return nil, err
		}
		files[ChecksPagePath] = page
	}
	return files, nil
}

// checksPage lists the brief's checks as a manual verification sheet. The markdown renderer
// drops raw HTML found in the task or checks.
func (s *scaffoldService) checksPage(repoName string, brief domain.TaskBrief) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "# Checks for %s\n\n", repoName)
	fmt.Fprintf(&md, "%s\n\n", brief.Task)
	for i, c := range brief.Checks {
		fmt.Fprintf(&md, "%d. %s\n", i+1, c)
	}
	var body bytes.Buffer
	if err := s.md.Convert([]byte(md.String()), &body); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>Checks: " + html.EscapeString(repoName) + "</title>\n")
	sb.WriteString("<style>body { font-family: sans-serif; max-width: 800px; margin: 2rem auto; } li { margin: .5rem 0; }</style>\n")
	sb.WriteString("</head>\n<body>\n")
	sb.Write(body.Bytes())
	sb.WriteString("<p><a href=\"index.html\">Open the site</a></p>\n</body>\n</html>\n")
	return sb.String(), nil
}
