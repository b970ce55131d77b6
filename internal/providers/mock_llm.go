package providers

import (
	"context"
	"html"
	"strings"
)

// MockLLM answers without calling any model. It echoes the task into a one-page site.
type MockLLM struct{}

func (MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	task := prompt.User
	if i := strings.Index(task, "\n"); i >= 0 {
		task = task[:i]
	}
	task = strings.TrimSpace(strings.TrimPrefix(task, "TASK:"))

	var sb strings.Builder
	sb.WriteString("Generated by the mock provider.\n\n")
	sb.WriteString("```filename: index.html\n")
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	sb.WriteString("<link rel=\"stylesheet\" href=\"styles.css\">\n</head>\n<body>\n")
	sb.WriteString("<h1>" + html.EscapeString(task) + "</h1>\n")
	sb.WriteString("<script src=\"script.js\"></script>\n</body>\n</html>\n```\n\n")
	sb.WriteString("```filename: styles.css\nbody { font-family: sans-serif; margin: 2rem; }\n```\n\n")
	sb.WriteString("```filename: script.js\nconsole.log(\"ready\");\n```\n")
	return sb.String(), nil
}
