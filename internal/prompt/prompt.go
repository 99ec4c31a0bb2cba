// Package prompt builds the instruction text sent to the generator: the
// base scene-writing brief, the per-request prompt and the correction
// prompt used by the retry loop.
package prompt

import (
	"fmt"
	"strings"
)

const system = `You are an expert Manim Community v0.19 developer.

Generate a complete, runnable Python script that visualizes the requested
concept.

Requirements:
1. Start with "from manim import *".
2. Define exactly one subclass of Scene with a construct(self) method and a
   meaningful class name.
3. Call self.play() at least once.
4. All LaTeX must be valid and properly escaped; when uncertain, use plain
   Text() instead of MathTex().
5. The script must render cleanly with "manim -ql" and must not touch the
   filesystem or the network.
6. Return only the script, inside a single fenced python code block, with
   no prose outside it.`

// System returns the base instruction given to the generator on the first
// attempt of every request.
func System() string {
	return system
}

// Request wraps the user's concept into the generation instruction.
func Request(concept string) string {
	var b strings.Builder
	b.WriteString("Animate the following concept:\n\n")
	b.WriteString(strings.TrimSpace(concept))
	b.WriteString("\n\nBreak the concept into visual steps using shapes, arrows and text.")
	b.WriteString(" Keep all code in one Scene subclass and return only the fenced code block.")
	return b.String()
}

// Correction asks the generator to repair a failed script. The original
// code, the error text and the attempt number are embedded so the model
// can see what it already tried.
func Correction(script, errText string, attempt int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The script below failed on attempt %d. Fix it and return the full corrected script in a fenced python code block.\n\n", attempt)
	b.WriteString("Error:\n")
	b.WriteString(strings.TrimSpace(errText))
	b.WriteString("\n\nScript:\n```python\n")
	b.WriteString(strings.TrimSpace(script))
	b.WriteString("\n```\n")
	return b.String()
}
