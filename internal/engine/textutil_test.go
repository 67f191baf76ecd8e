package engine

import (
	"reflect"
	"testing"
)

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<b>bold</b> text", "bold text"},
		{"plain text", "plain text"},
		{`<a href="url">link</a>`, "link"},
		{"Zapier &amp; Gmail &#39;tips&#39;", "Zapier & Gmail 'tips'"},
		{"", ""},
	}

	for _, tt := range tests {
		got := CleanHTML(tt.input)
		if got != tt.want {
			t.Errorf("CleanHTML(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Build Your FIRST\tZap\n\nToday ", "build your first zap today"},
		{"n8n", "n8n"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.input); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"webhooks", " webhooks ", "", "api", "webhooks", "API"})
	want := []string{"webhooks", "api", "API"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeStrings = %q, want %q", got, want)
	}
	if got := DedupeStrings(nil); got == nil || len(got) != 0 {
		t.Errorf("DedupeStrings(nil) = %#v, want empty non-nil", got)
	}
}
