//go:build !integration

package llmjson

import "testing"

type decision struct {
	Decision string `json:"decision"`
	TaskID   string `json:"task_id"`
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		ok     bool
		want   string
		taskID string
	}{
		{"plain", `{"decision":"new"}`, true, "new", ""},
		{"fenced", "```json\n{\"decision\":\"continue\",\"task_id\":\"t1\"}\n```", true, "continue", "t1"},
		{"prose", `Sure! Here you go: {"decision":"continue","task_id":"a}b"} hope that helps`, true, "continue", "a}b"},
		{"nested", `x {"decision":"new","meta":{"k":1}} y`, true, "new", ""},
		{"empty", "   ", false, "", ""},
		{"garbage", "no json here", false, "", ""},
		{"unbalanced", `{"decision":"new"`, false, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Decode[decision](tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got.Decision != tc.want || got.TaskID != tc.taskID {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestExtractObject(t *testing.T) {
	if got := ExtractObject(`a {"x":"{"} b`); got != `{"x":"{"}` {
		t.Errorf("got %q", got)
	}
	if got := ExtractObject("none"); got != "" {
		t.Errorf("got %q", got)
	}
}
