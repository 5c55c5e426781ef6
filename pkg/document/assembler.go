// Package document assembles section summaries into the final markdown
// study document.
package document

import (
	"fmt"
	"strings"

	"github.com/otherjamesbrown/studynotes-cli/pkg/summarize"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

// DefaultStudyTips closes every document unless replaced.
var DefaultStudyTips = []string{
	"**Use timestamps** to jump to specific topics you want to review",
	"**Take notes** while watching each section",
	"**Practice along** with the instructor",
	"**Use the Q&A feature** to ask questions about specific concepts",
	"**Generate flashcards** to test your understanding",
}

// Assembler renders documents. The zero value uses DefaultStudyTips.
type Assembler struct {
	StudyTips []string
}

// Assemble renders a document with the default assembler.
func Assemble(summaries []summarize.SectionSummary, videoTitle string, totalDuration float64) string {
	return Assembler{}.Assemble(summaries, videoTitle, totalDuration)
}

// Assemble renders the header, table of contents, section bodies and the
// study tips block, with sections in the order given.
func (a Assembler) Assemble(summaries []summarize.SectionSummary, videoTitle string, totalDuration float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# 📹 Video Summary: %s\n\n", videoTitle)
	fmt.Fprintf(&b, "**Duration:** %s | **Sections:** %d\n\n",
		transcript.FormatTimestamp(totalDuration), len(summaries))
	b.WriteString("---\n\n")

	b.WriteString("## 📑 Table of Contents\n\n")
	for i, s := range summaries {
		fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, s.Title, span(s))
	}
	b.WriteString("\n")

	bodies := make([]string, len(summaries))
	for i, s := range summaries {
		bodies[i] = fmt.Sprintf("---\n\n## Section %d: %s\n**Timestamp:** %s\n\n%s",
			s.SectionNumber, s.Title, span(s), s.Summary)
	}
	b.WriteString(strings.Join(bodies, "\n\n"))

	b.WriteString("\n\n---\n\n## 🎯 Study Tips\n\n")
	tips := a.StudyTips
	if len(tips) == 0 {
		tips = DefaultStudyTips
	}
	for _, tip := range tips {
		fmt.Fprintf(&b, "- %s\n", tip)
	}

	return b.String()
}

func span(s summarize.SectionSummary) string {
	return transcript.FormatTimestamp(s.StartTime) + " - " + transcript.FormatTimestamp(s.EndTime)
}
