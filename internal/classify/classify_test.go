package classify

import (
	"errors"
	"testing"

	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/index"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Mode
	}{
		{"tag list", "a, b, c", TagsMode},
		{"tag list no spaces", "pandas,numpy,plot", TagsMode},
		{"python function", "def foo(x): return x", CodeMode},
		{"natural question", "how do I drop missing values in pandas", QuestionMode},
		{"empty", "", QuestionMode},
		{"braces", "if (x) { y }", CodeMode},
		{"include", "#include <stdio.h>", CodeMode},
		{"arrow", "x -> y", CodeMode},
		{"comparison", "a == b", CodeMode},
		{"indexing", "arr[0]", CodeMode},
		{"colon in prose", "note: use groupby", CodeMode},
		{"commas in long sentence", "first, second, third and a few more words", QuestionMode},
		{"one comma", "pandas, numpy", QuestionMode},
		{"tags beat code tokens", "a:b, c, d", TagsMode},
		{"import statement", "import numpy as np", CodeMode},
		{"loop", "for(i=0;i<n;i++)", CodeMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestExplain_RuleCoverage(t *testing.T) {
	c := New(nil)

	// One sample per rule plus the fallback
	samples := map[string]string{
		"tag-list":   "x, y, z",
		"code-token": "class Foo:",
		"fallback":   "what is a dataframe",
	}

	for _, r := range c.Rules() {
		if _, ok := samples[r.Name]; !ok {
			t.Errorf("Rule %q has no coverage sample", r.Name)
		}
	}

	for want, text := range samples {
		_, got := c.Explain(text)
		if got != want {
			t.Errorf("Explain(%q) rule = %q, want %q", text, got, want)
		}
	}
}

func TestNew_CustomRules(t *testing.T) {
	c := New([]Rule{
		{Name: "always-code", Mode: CodeMode, Match: func(string) bool { return true }},
	})
	if got := c.Classify("a, b, c"); got != CodeMode {
		t.Errorf("Classify = %s, want code", got)
	}

	empty := New([]Rule{})
	if got := empty.Classify("def f(): pass"); got != QuestionMode {
		t.Errorf("Expected fallback for empty rule set, got %s", got)
	}
}

func TestRules_ReturnsCopy(t *testing.T) {
	c := New(nil)
	rules := c.Rules()
	rules[0].Mode = QuestionMode

	if c.Rules()[0].Mode != TagsMode {
		t.Error("Rules() exposed internal state")
	}
}

func TestMode_Facet(t *testing.T) {
	tests := []struct {
		mode Mode
		want index.Facet
	}{
		{QuestionMode, index.FacetQuestion},
		{CodeMode, index.FacetCode},
		{TagsMode, index.FacetTags},
	}
	for _, tt := range tests {
		got, err := tt.mode.Facet()
		if err != nil {
			t.Errorf("Facet(%s) failed: %v", tt.mode, err)
		}
		if got != tt.want {
			t.Errorf("Facet(%s) = %q, want %q", tt.mode, got, tt.want)
		}
	}

	_, err := Mode(99).Facet()
	if !errors.Is(err, domain.ErrInvalidMode) {
		t.Errorf("Expected ErrInvalidMode, got %v", err)
	}
	if Mode(99).String() != "mode(99)" {
		t.Errorf("String = %q", Mode(99).String())
	}
}
