package notifier

import (
	"errors"
	"testing"
)

func TestNewRequestComposesText(t *testing.T) {
	cases := []struct {
		name      string
		kind      Kind
		p         Payload
		wantTitle string
		wantBody  string
	}{
		{"comment", KindNewComment, Payload{Creator: "Ana", Target: "Cut v2"}, "Ana commented on", "Cut v2"},
		{"mention", KindMention, Payload{Creator: "Ana", Target: "Storyboard"}, "Ana mentioned you in", "Storyboard"},
		{"reply", KindReply, Payload{Creator: "Bo", Target: "Shot 12"}, "Bo replied to your comment on", "Shot 12"},
		{"assigned", KindTaskAssigned, Payload{Creator: "Cy", Target: "Color pass"}, "Cy assigned you to", "Color pass"},
		{"status", KindTaskStatus, Payload{Creator: "Cy", Target: "Color pass", Status: "done"}, "Cy changed the status of", "Color pass to done"},
		{"generic", KindGeneric, Payload{Creator: "John Doe", Message: "created a new document", Target: "Design Document", Info: "Project X"}, "John Doe created a new document", "Design Document - Project X"},
		{"generic no info", KindGeneric, Payload{Creator: "John", Message: "uploaded", Target: "file.mov"}, "John uploaded", "file.mov"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewRequest(tc.kind, tc.p)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			if r.Title != tc.wantTitle || r.Body != tc.wantBody {
				t.Fatalf("got (%q, %q), want (%q, %q)", r.Title, r.Body, tc.wantTitle, tc.wantBody)
			}
			if r.ID == "" || r.Kind != tc.kind {
				t.Fatalf("unexpected id/kind: %+v", r)
			}
		})
	}
}

func TestNewRequestValidation(t *testing.T) {
	cases := []struct {
		kind Kind
		p    Payload
	}{
		{KindMention, Payload{Target: "x"}},
		{KindMention, Payload{Creator: "a"}},
		{KindGeneric, Payload{Creator: "a", Target: "x"}},
		{Kind("bogus"), Payload{Creator: "a", Target: "x"}},
	}
	for _, tc := range cases {
		if _, err := NewRequest(tc.kind, tc.p); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("NewRequest(%q, %+v) err = %v, want ErrInvalidRequest", tc.kind, tc.p, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"":              KindGeneric,
		"generic":       KindGeneric,
		"New-Comment":   KindNewComment,
		" task-status ": KindTaskStatus,
	} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("fax"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	a := Simple("t", "b", "")
	b := Simple("t", "b", "")
	if a.ID == b.ID {
		t.Fatalf("duplicate ids %q", a.ID)
	}
}
