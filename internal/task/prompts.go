package task

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/llm"
)

const (
	architectureSystem = "You are an experienced software architect who specializes in creating clear, detailed architectural documentation."
	userStoriesSystem  = "You are a product manager who specializes in creating detailed user stories from technical implementations."
	customSystem       = "You are an AI assistant specialized in code analysis and documentation generation."
	codeStorySystem    = "You are a master programmer and storyteller who excels at explaining complex code through narrative storytelling."
)

const architecturePrompt = `Please analyze the following repository code and generate a comprehensive architectural documentation.
Focus on the overall structure, key components, design patterns, and how different parts of the system interact.
Format the output as markdown with proper headings, code blocks, and bullet points as needed.
`

const userStoriesPrompt = `Please analyze the following repository code and generate user stories that describe the functionality from an end-user perspective.
Include acceptance criteria for each story when possible.
Format the output as markdown with proper headings and structure.
`

const customPrompt = `Please analyze the following repository code and respond to this specific request:

%s
`

const codeStoryPrompt = `Please analyze the following code and create a narrative "Code Story" that explains the complex structures and logic in an engaging, storytelling format.
%s

Use analogies, metaphors, and storytelling elements to make the code understandable.
Focus on the "why" behind design decisions, not just the "what" and "how".
Format the output as markdown with proper headings, code blocks for key examples, and narrative sections.
`

const chunkFraming = `
You are seeing chunk %d of %d of a larger repository. This is a partial view:
do not assume you have the full context, and do not invent components that are not shown.
Document only what this chunk contains; the sections from every chunk will be combined in order.
`

func detailLevel(c Complexity) string {
	switch c {
	case ComplexitySimple:
		return "Keep explanations simple and beginner-friendly, focusing on high-level concepts rather than implementation details."
	case ComplexityDetailed:
		return "Include detailed explanations of algorithms, patterns, and technical concepts, suitable for experienced developers."
	default:
		return "Balance technical details with narrative storytelling, making the code approachable to intermediate programmers."
	}
}

// SystemPrompt returns the system message for a kind.
func SystemPrompt(kind Kind) string {
	switch kind {
	case KindArchitecture:
		return architectureSystem
	case KindUserStories:
		return userStoriesSystem
	case KindCodeStory:
		return codeStorySystem
	default:
		return customSystem
	}
}

// BuildMessages renders the prompt for code. The same template serves the
// direct path (pos == nil) and each chunk of a batch.
func BuildMessages(kind Kind, params Params, code string, pos *Position) []llm.Message {
	var sb strings.Builder
	switch kind {
	case KindArchitecture:
		sb.WriteString(architecturePrompt)
	case KindUserStories:
		sb.WriteString(userStoriesPrompt)
	case KindCustomAnalysis:
		fmt.Fprintf(&sb, customPrompt, params.Instruction)
	case KindCodeStory:
		fmt.Fprintf(&sb, codeStoryPrompt, detailLevel(params.Complexity))
	}

	if pos != nil && pos.Total > 1 {
		fmt.Fprintf(&sb, chunkFraming, pos.Index+1, pos.Total)
	}

	sb.WriteString("\nCode:\n")
	sb.WriteString(code)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt(kind)},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}
