package analysis

import "github.com/chainscribe/chainscribe/pkg/models"

type template struct {
	prefix    string
	maxTokens int
}

var templates = map[models.AnalysisType]template{
	models.AnalysisSummary: {
		prefix:    "Provide a concise summary of the following text:\n\n",
		maxTokens: 300,
	},
	models.AnalysisExplanation: {
		prefix:    "Explain the following text in simple terms:\n\n",
		maxTokens: 400,
	},
	models.AnalysisRelated: {
		prefix:    "List the topics, concepts and documents most closely related to the following text:\n\n",
		maxTokens: 400,
	},
	models.AnalysisGraph: {
		prefix: "Analyze the following document content and extract key entities (people, concepts, document titles mentioned) " +
			"and their relationships. Output ONLY a JSON object with 'nodes' and 'edges' arrays. " +
			"Nodes should have 'id' and 'label'. Edges should have 'source', 'target', and 'label'.\n\nCONTENT:\n",
		maxTokens: 1000,
	},
	models.AnalysisChange: {
		prefix:    "Analyze these document changes and provide a brief summary:\n\n",
		maxTokens: 150,
	},
}

var generalTemplate = template{
	prefix:    "Analyze the following text:\n\n",
	maxTokens: 500,
}

// BuildPrompt returns the prompt and output token limit for an analysis
// type. Unknown types use the general template.
func BuildPrompt(t models.AnalysisType, content string) (string, int) {
	tmpl, ok := templates[t]
	if !ok {
		tmpl = generalTemplate
	}
	return tmpl.prefix + content, tmpl.maxTokens
}
