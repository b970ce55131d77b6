package services

import (
	"fmt"
	"strings"

	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

const systemPrompt = `You are an expert frontend web developer. You write complete, working client-side web applications.

Constraints:
- Generate ONLY client-side code (HTML, CSS, JavaScript). No server-side code.
- Everything must work in a browser from static hosting (GitHub Pages).
- Use fetch() for external requests and URLSearchParams for query parameters.
- Handle errors and show loading and error states to the user.
- No placeholders: every file must be complete.`

// BuildPrompt turns a brief into the prompt sent to the AI oracle. The first user line is
// always "TASK: <task>".
func BuildPrompt(brief domain.TaskBrief) providers.Prompt {
	var sb strings.Builder
	sb.WriteString("TASK: ")
	sb.WriteString(brief.Task)
	sb.WriteString("\n")

	if brief.Round > 0 {
		sb.WriteString(fmt.Sprintf("ROUND: %d\n", brief.Round))
	}

	if len(brief.Checks) > 0 {
		sb.WriteString("\nEvaluation requirements (MUST be satisfied):\n")
		for i, c := range brief.Checks {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, c))
		}
	}

	sb.WriteString(`
Create separate files, starting with index.html, then styles.css, then script.js.
Structure every file exactly like this:
` + "```filename: <path>\n<complete file content>\n```" + `

Outside the file blocks, write a short markdown summary of what you built.
`)

	return providers.Prompt{System: systemPrompt, User: sb.String()}
}
