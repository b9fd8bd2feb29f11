package changes

import "strings"

const promptTemplate = `Analyze the document changes and provide a concise 1-2 sentence summary.
Focus on:
- What content was added, removed, or modified
- The significance and impact of changes
- Overall effect on document quality and completeness

Diff Summary:
{{diff}}

Provide only the summary, no additional commentary.`

// BuildPrompt embeds a diff excerpt in the change summary prompt.
func BuildPrompt(excerpt string) string {
	return strings.Replace(promptTemplate, "{{diff}}", excerpt, 1)
}
