package generate

import (
	"errors"
	"testing"

	"github.com/antoniostano/scenegen/internal/chat"
)

func TestExtractScriptFromFencedBlock(t *testing.T) {
	raw := "Here is the scene:\n```python\nfrom manim import *\n\nclass CircleScene(Scene):\n    def construct(self):\n        pass\n```\nLet me know if it works."
	got := ExtractScript(raw)
	want := "from manim import *\n\nclass CircleScene(Scene):\n    def construct(self):\n        pass"
	if got != want {
		t.Fatalf("ExtractScript() = %q, want %q", got, want)
	}
}

func TestExtractScriptFromPlainFence(t *testing.T) {
	raw := "```\nclass A(Scene):\n    pass\n```"
	got := ExtractScript(raw)
	if got != "class A(Scene):\n    pass" {
		t.Fatalf("ExtractScript() = %q", got)
	}
}

func TestExtractScriptWithoutFenceReturnsTrimmed(t *testing.T) {
	raw := "  \nclass B(Scene):\n    pass\n  "
	if got := ExtractScript(raw); got != "class B(Scene):\n    pass" {
		t.Fatalf("ExtractScript() = %q", got)
	}
}

func TestSceneName(t *testing.T) {
	script := "from manim import *\n\nclass PythagorasProof(Scene):\n    def construct(self):\n        pass"
	name, err := SceneName(script)
	if err != nil {
		t.Fatalf("SceneName() error = %v", err)
	}
	if name != "PythagorasProof" {
		t.Fatalf("SceneName() = %q, want %q", name, "PythagorasProof")
	}
}

func TestSceneNameToleratesSpacing(t *testing.T) {
	name, err := SceneName("class  Spaced ( Scene ) :\n    pass")
	if err != nil {
		t.Fatalf("SceneName() error = %v", err)
	}
	if name != "Spaced" {
		t.Fatalf("SceneName() = %q, want %q", name, "Spaced")
	}
}

func TestSceneNameRejectsScriptWithoutScene(t *testing.T) {
	for _, script := range []string{
		"",
		"print('hello')",
		"class Helper:\n    pass",
		"class Sub(ThreeDScene):\n    pass",
	} {
		if _, err := SceneName(script); !errors.Is(err, chat.ErrValidation) {
			t.Fatalf("SceneName(%q) error = %v, want ErrValidation", script, err)
		}
	}
}
