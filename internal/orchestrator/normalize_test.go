package orchestrator

import "testing"

func TestStripLabelPrefix(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Output: A cat is sleeping", "A cat is sleeping"},
		{"A cat is sleeping", "A cat is sleeping"},
		{"Output: Answer: X", "Answer: X"},
		{"ANSWER: forty-two", "forty-two"},
		{"caption: un chat", "un chat"},
		{"  Description:  spaced out  ", "spaced out"},
		{"Result:", ""},
		{"", ""},
		{"outputs are plural", "outputs are plural"},
		{"The output: of the model", "The output: of the model"},
	}
	for _, c := range cases {
		if got := StripLabelPrefix(c.in); got != c.want {
			t.Errorf("StripLabelPrefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
