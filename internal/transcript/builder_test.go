package transcript

import (
	"testing"

	"github.com/stagechat/session-gateway/internal/domain"
)

func pair(userText string, userAt int64, assistantText string, assistantAt int64) domain.HistoryMessagePair {
	return domain.HistoryMessagePair{
		User:      domain.HistoryMessage{Content: userText, CreatedAt: userAt},
		Assistant: domain.HistoryMessage{Content: assistantText, CreatedAt: assistantAt},
	}
}

func TestRenderFirstMessage(t *testing.T) {
	tests := []struct {
		name     string
		template string
		char     string
		user     string
		want     string
	}{
		{"both tokens", "I am {{char}}, you are {{user}}.", "Luna", "dave", "I am Luna, you are dave."},
		{"repeated tokens", "{{char}} {{char}}!", "Luna", "dave", "Luna Luna!"},
		{"no tokens", "plain greeting", "Luna", "dave", "plain greeting"},
		{"empty template", "", "Luna", "dave", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderFirstMessage(tt.template, tt.char, tt.user); got != tt.want {
				t.Errorf("RenderFirstMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild_Length(t *testing.T) {
	tests := []struct {
		name  string
		pairs []domain.HistoryMessagePair
		want  int
	}{
		{"zero pairs", nil, 1},
		{"one pair", []domain.HistoryMessagePair{pair("hi", 10, "hello", 11)}, 3},
		{"three pairs", []domain.HistoryMessagePair{
			pair("a", 10, "b", 11),
			pair("c", 12, "d", 13),
			pair("e", 14, "f", 15),
		}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build("hey {{user}}", "Luna", "dave", tt.pairs, 5)
			if len(got) != tt.want {
				t.Fatalf("Build() returned %d messages, want %d", len(got), tt.want)
			}
		})
	}
}

func TestBuild_OrderAndTimestamps(t *testing.T) {
	pairs := []domain.HistoryMessagePair{
		pair("first question", 100, "first answer", 101),
		pair("second question", 102, "second answer", 103),
	}

	got := Build("welcome", "Luna", "dave", pairs, 99)

	wantTexts := []string{"welcome", "first question", "first answer", "second question", "second answer"}
	wantRoles := []domain.Role{
		domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant,
	}

	for i, m := range got {
		if m.Text != wantTexts[i] {
			t.Errorf("message %d text = %q, want %q", i, m.Text, wantTexts[i])
		}
		if m.Role != wantRoles[i] {
			t.Errorf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
		}
		if m.Status != domain.StatusSuccess {
			t.Errorf("message %d status = %q, want success", i, m.Status)
		}
		if i > 0 && m.CreatedAt < got[i-1].CreatedAt {
			t.Errorf("timestamps decrease at index %d: %d < %d", i, m.CreatedAt, got[i-1].CreatedAt)
		}
	}
}

func TestBuild_SingleLatestReply(t *testing.T) {
	tests := []struct {
		name  string
		pairs []domain.HistoryMessagePair
	}{
		{"zero pairs", nil},
		{"one pair", []domain.HistoryMessagePair{pair("hi", 10, "hello", 11)}},
		{"two pairs", []domain.HistoryMessagePair{pair("a", 10, "b", 11), pair("c", 12, "d", 13)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build("hey", "Luna", "dave", tt.pairs, 5)

			flagged := 0
			for _, m := range got {
				if m.IsLatestReply {
					flagged++
				}
			}
			if flagged != 1 {
				t.Fatalf("%d messages flagged as latest reply, want 1", flagged)
			}

			last := got[len(got)-1]
			if !last.IsLatestReply {
				t.Error("last message is not the latest reply")
			}
			if last.Role != domain.RoleAssistant {
				t.Errorf("latest reply role = %q, want assistant", last.Role)
			}
		})
	}
}

func TestBuild_ZeroPairs(t *testing.T) {
	got := Build("hello {{user}}, I am {{char}}", "Luna", "dave", nil, 42)

	if len(got) != 1 {
		t.Fatalf("Build() returned %d messages, want 1", len(got))
	}
	m := got[0]
	if m.Text != "hello dave, I am Luna" {
		t.Errorf("first message text = %q", m.Text)
	}
	if m.CreatedAt != 42 {
		t.Errorf("first message created_at = %d, want 42", m.CreatedAt)
	}
	if m.Role != domain.RoleAssistant || !m.IsLatestReply {
		t.Errorf("first message role = %q, latest = %v", m.Role, m.IsLatestReply)
	}
}

func TestBuildForViewer_RoleAttribution(t *testing.T) {
	pairs := []domain.HistoryMessagePair{
		{
			User:      domain.HistoryMessage{Content: "mine", CreatedAt: 10, AuthorID: "u1"},
			Assistant: domain.HistoryMessage{Content: "reply to mine", CreatedAt: 11},
		},
		{
			User:      domain.HistoryMessage{Content: "someone else", CreatedAt: 12, AuthorID: "u2"},
			Assistant: domain.HistoryMessage{Content: "reply to them", CreatedAt: 13},
		},
	}

	got := BuildForViewer("u1", "welcome", "Luna", "dave", pairs, 9)

	wantRoles := []domain.Role{
		domain.RoleAssistant, // first message
		domain.RoleUser,      // authored by u1
		domain.RoleAssistant,
		domain.RoleAssistant, // authored by u2: not the viewer
		domain.RoleAssistant,
	}
	for i, m := range got {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
		}
	}
}

func TestBuildForViewer_AnonymousSpectator(t *testing.T) {
	pairs := []domain.HistoryMessagePair{
		{
			User:      domain.HistoryMessage{Content: "post", CreatedAt: 10, AuthorID: "u1"},
			Assistant: domain.HistoryMessage{Content: "reply", CreatedAt: 11},
		},
	}

	got := BuildForViewer("", "welcome", "Luna", "", pairs, 9)

	for i, m := range got {
		if m.Role != domain.RoleAssistant {
			t.Errorf("message %d role = %q, want assistant for anonymous viewer", i, m.Role)
		}
	}
}
