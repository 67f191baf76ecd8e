package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseTool(t *testing.T) {
	tests := []struct {
		input    string
		allowAll bool
		want     Tool
		wantErr  bool
	}{
		{"zapier", false, ToolZapier, false},
		{" N8N ", false, ToolN8N, false},
		{"Make.com", false, ToolMake, false},
		{"integromat", false, ToolMake, false},
		{"all", true, ToolAll, false},
		{"all", false, "", true},
		{"", true, "", true},
		{"ifttt", true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTool(tt.input, tt.allowAll)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseTool(%q) error = %v, want validation error", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseTool(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestExpandTool(t *testing.T) {
	if got := ExpandTool(ToolAll); !reflect.DeepEqual(got, SupportedTools) {
		t.Errorf("ExpandTool(all) = %v", got)
	}
	if got := ExpandTool(ToolMake); !reflect.DeepEqual(got, []Tool{ToolMake}) {
		t.Errorf("ExpandTool(make) = %v", got)
	}
}

func TestParseDifficulties(t *testing.T) {
	got, err := ParseDifficulties(nil)
	if err != nil || !reflect.DeepEqual(got, Difficulties) {
		t.Errorf("ParseDifficulties(nil) = %v, %v", got, err)
	}
	got, err = ParseDifficulties([]string{"Advanced", "beginner", "advanced"})
	if err != nil || !reflect.DeepEqual(got, []Difficulty{Advanced, Beginner}) {
		t.Errorf("ParseDifficulties = %v, %v", got, err)
	}
	if _, err := ParseDifficulties([]string{"beginner", "expert"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expert accepted: %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobRunning, true},
		{JobPaused, JobRunning, true},
		{JobRunning, JobPaused, true},
		{JobRunning, JobCompleted, true},
		{JobRunning, JobFailed, true},
		{JobPending, JobCancelled, true},
		{JobPaused, JobCancelled, true},
		{JobPending, JobPaused, false},
		{JobPending, JobCompleted, false},
		{JobCompleted, JobRunning, false},
		{JobCancelled, JobCancelled, false},
		{JobFailed, JobRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
	for _, s := range []JobStatus{JobCompleted, JobFailed, JobCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestTransitionErrorIs(t *testing.T) {
	var err error = &TransitionError{JobID: "j1", From: JobCompleted, To: JobRunning}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("TransitionError does not match ErrInvalidTransition")
	}
	var te *TransitionError
	if !errors.As(err, &te) || te.From != JobCompleted {
		t.Errorf("errors.As = %+v", te)
	}
}

func TestRawVideoMerge(t *testing.T) {
	published := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	v := RawVideo{ExternalID: "x", Description: "short", ViewCount: 10}
	if !v.NeedsDetails() {
		t.Fatal("missing publish date should need details")
	}
	v.Merge(RawVideoDetails{
		Description:     "a much longer description",
		PublishedAt:     published,
		Tags:            []string{"zapier"},
		DurationSeconds: 600,
		ViewCount:       999,
	})
	if v.Description != "a much longer description" || !v.PublishedAt.Equal(published) {
		t.Errorf("merge = %+v", v)
	}
	if v.ViewCount != 10 {
		t.Errorf("ViewCount overwritten: %d", v.ViewCount)
	}
	if v.DurationSeconds != 600 || len(v.Tags) != 1 {
		t.Errorf("empty fields not filled: %+v", v)
	}
	if v.NeedsDetails() {
		t.Error("complete record still needs details")
	}
}

func TestFeedbackValidate(t *testing.T) {
	tests := []struct {
		name string
		f    Feedback
		ok   bool
	}{
		{"minimal", Feedback{VideoID: "v", UserRating: 3}, true},
		{"all ratings", Feedback{VideoID: "v", UserRating: 5, QualityRating: 1, HelpfulnessRating: 5, AccuracyRating: 2, ClarityRating: 4}, true},
		{"no video", Feedback{UserRating: 3}, false},
		{"missing rating", Feedback{VideoID: "v"}, false},
		{"rating too high", Feedback{VideoID: "v", UserRating: 6}, false},
		{"optional out of range", Feedback{VideoID: "v", UserRating: 3, ClarityRating: 7}, false},
		{"optional negative", Feedback{VideoID: "v", UserRating: 3, AccuracyRating: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() = %v, want validation error", err)
			}
		})
	}
}
