package models

import (
	"strings"
	"testing"
)

func TestSkillPreviewReturnsBodyUnchangedWhenShort(t *testing.T) {
	s := &Skill{Body: "short body"}
	if s.Preview() != "short body" {
		t.Fatalf("expected unchanged short body, got %q", s.Preview())
	}
}

func TestSkillPreviewTruncatesLongBody(t *testing.T) {
	s := &Skill{Body: strings.Repeat("a", 600)}
	preview := s.Preview()
	if !strings.HasSuffix(preview, "...") {
		t.Fatalf("expected truncated preview to end with ellipsis, got suffix %q", preview[len(preview)-10:])
	}
	if len([]rune(preview)) != 503 {
		t.Fatalf("expected preview length 500+3, got %d", len([]rune(preview)))
	}
}
