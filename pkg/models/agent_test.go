package models

import "testing"

func TestDisplayNameTitleCasesHyphenatedIDs(t *testing.T) {
	cases := map[string]string{
		"backend-dev": "Backend Dev",
		"reviewer":    "Reviewer",
		"qa_engineer": "Qa Engineer",
		"":            "PM",
	}
	for id, want := range cases {
		if got := DisplayName(id); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", id, got, want)
		}
	}
}
