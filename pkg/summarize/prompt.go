package summarize

import (
	"fmt"

	"github.com/otherjamesbrown/studynotes-cli/pkg/chunking"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

const chunkPrompt = `You are summarizing section %d of %d from an educational video.

Section Title: %s
Timestamp: %s - %s

Write a detailed study summary of this part of the video covering:
1. **What You'll Learn** - the main learning objectives
2. **Key Points** - important concepts and explanations, as bullet points
3. **Examples** - any examples or demonstrations mentioned
4. **Important Terms** - key vocabulary or concepts introduced

Be specific. This is one part of a longer video and students rely on these notes.

Transcript:
%s

Summary:`

// BuildPrompt renders the generation prompt for one chunk.
func BuildPrompt(chunk chunking.Chunk, title string, sectionNumber, totalSections int) string {
	return fmt.Sprintf(chunkPrompt,
		sectionNumber, totalSections,
		title,
		transcript.FormatTimestamp(chunk.StartTime),
		transcript.FormatTimestamp(chunk.EndTime),
		chunk.Text,
	)
}

// Placeholder is substituted for a chunk whose generation call failed.
func Placeholder(start float64) string {
	return fmt.Sprintf("**Summary unavailable for this section.** Please refer to the video at %s.",
		transcript.FormatTimestamp(start))
}

func chunkTitle(title string, index, count int) string {
	if count <= 1 {
		return title
	}
	return fmt.Sprintf("%s (Part %d/%d)", title, index+1, count)
}
