package bot

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "general", want: []string{"general"}},
		{in: "  general   50 ", want: []string{"general", "50"}},
		{in: `"team sync" 20`, want: []string{"team sync", "20"}},
		{in: `'it''s' x`, want: []string{"its", "x"}},
		{in: `a\ b c`, want: []string{"a b", "c"}},
		{in: `"" x`, want: []string{"", "x"}},
		{in: `"open`, wantErr: true},
		{in: `trailing\`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := splitArgs(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitArgs(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSummarizeArgs(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCount int
		wantLink  bool
		wantReply string
	}{
		{name: "default count", raw: "general", wantCount: 100},
		{name: "explicit count", raw: "general 50", wantCount: 50},
		{name: "upper bound accepted", raw: "general 200", wantCount: 200},
		{name: "lower bound accepted", raw: "general 1", wantCount: 1},
		{name: "above range", raw: "general 201", wantReply: "от 1 до 200"},
		{name: "zero", raw: "general 0", wantReply: "от 1 до 200"},
		{name: "negative", raw: "general -5", wantReply: "от 1 до 200"},
		{name: "link", raw: "general https://t.me/c/123/45", wantLink: true},
		{name: "broken link", raw: "general https://t.me/c/abc", wantReply: "ссылку"},
		{name: "not a number", raw: "general many", wantReply: "Неверный формат"},
		{name: "no arguments", raw: "", wantReply: "Неверный формат"},
		{name: "too many arguments", raw: "general 10 20", wantReply: "Неверный формат"},
		{name: "unbalanced quote", raw: `"general 10`, wantReply: "Неверный формат"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, reply := parseSummarizeArgs(tt.raw, 200)
			if tt.wantReply != "" {
				if args != nil {
					t.Fatalf("expected rejection, got %+v", args)
				}
				if !strings.Contains(reply, tt.wantReply) {
					t.Errorf("reply = %q, want it to contain %q", reply, tt.wantReply)
				}
				return
			}
			if args == nil {
				t.Fatalf("unexpected rejection: %q", reply)
			}
			if args.PromptName != "general" {
				t.Errorf("PromptName = %q", args.PromptName)
			}
			if tt.wantLink {
				if args.Link == nil {
					t.Error("expected a link")
				}
				return
			}
			if args.Count != tt.wantCount {
				t.Errorf("Count = %d, want %d", args.Count, tt.wantCount)
			}
		})
	}
}

func TestPollTimeout(t *testing.T) {
	tests := map[int]int{30: 25, 120: 60, 3: 1}
	for in, want := range tests {
		if got := pollTimeout(in); got != want {
			t.Errorf("pollTimeout(%d) = %d, want %d", in, got, want)
		}
	}
}
