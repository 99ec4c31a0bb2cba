package generate

import (
	"regexp"
	"strings"

	"github.com/antoniostano/scenegen/internal/chat"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```(?:python)?\\s*\\n?(.*?)```")
	sceneClass  = regexp.MustCompile(`class\s+(\w+)\s*\(\s*Scene\s*\)\s*:`)
)

// ExtractScript strips markdown fencing from raw model output. Output
// without a fenced block is returned trimmed as-is; validation happens in
// SceneName.
func ExtractScript(raw string) string {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// SceneName extracts the declared scene identifier. A script with no
// recognizable Scene subclass fails validation.
func SceneName(script string) (string, error) {
	m := sceneClass.FindStringSubmatch(script)
	if m == nil {
		return "", chat.ErrValidation
	}
	return m[1], nil
}
