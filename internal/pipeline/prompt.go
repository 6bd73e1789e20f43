package pipeline

import (
	"fmt"
	"strings"
)

// buildContext concatenates the retrieved articles into a context block,
// preserving retrieval order.
func buildContext(articles []RetrievedArticle) string {
	var b strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&b, "Article from %s titled \"%s\":\n", a.Source, a.Title)
		b.WriteString(a.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// buildPrompt embeds the context block and the literal user question,
// instructing the model to answer from the context, admit when it is
// insufficient, and cite sources.
func buildPrompt(query string, articles []RetrievedArticle) string {
	return fmt.Sprintf(
		"Context from news articles:\n%s\n\nUser question: %s\n\n"+
			"Please provide a relevant answer based on the context above. "+
			"If the context doesn't contain relevant information, please say so. "+
			"Include sources in your response when citing specific information.",
		buildContext(articles), query)
}
