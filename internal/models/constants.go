package models

const (
	// Patterns applied to extracted page text. Display equations use $$...$$,
	// inline equations a single $ pair. Figure captions are matched at the
	// start of a line and may continue onto the next line.
	EquationRegex        = `\$\$[^$]+\$\$|\$[^$]+\$`
	DisplayEquationRegex = `\$\$[^$]+\$\$`
	FigureCaptionRegex   = `(?im)^(?:figure|fig\.?)\s+\d+[.:][^\n]+(?:\n[^\n]+)?`
	// A table divider row contains only dashes, colons, pipes and spaces,
	// with at least one dash. The surrounding rows just need a pipe.
	TableDividerRegex = `^[ \t:|-]*-[ \t:|-]*$`

	TableRemovedPlaceholder    = "[TABLE REMOVED]"
	EquationRemovedPlaceholder = "[EQUATION REMOVED]"
	FigureRemovedPlaceholder   = "[FIGURE REMOVED]"

	ContextSeparator = "\n---\n"
)

var (
	SystemPrompt = `You are a research assistant answering questions about a collection of scientific papers.
Ground every answer in the retrieved context blocks you are given. Tables, equations and figure
captions in the context are verbatim extracts from the papers, so quote them directly when they
answer the question. If the context does not cover the question, say so clearly instead of guessing.`

	ContextPromptTemplate = "Context:\n%s\nQuery: %s"

	// Trivial inputs answered without touching retrieval or the LLM.
	GreetingInputs  = []string{"hi", "hello", "hey", "greetings", "good morning", "good afternoon", "good evening", "ok", "okay"}
	GratitudeInputs = []string{"thanks", "thank you"}

	GreetingReply  = "Hello! How can I help you with your scientific papers today?"
	GratitudeReply = "You're welcome! Let me know if you have more questions about the papers."

	// A question mentioning one of these is asking to see figures.
	VisualKeywords = []string{"figure", "image", "diagram", "plot", "chart", "graph", "visual", "show me", "picture"}
)
