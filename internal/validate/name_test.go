package validate

import "testing"

func TestIsValidName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"alice", true},
		{"alice_2.0", true},
		{"general chat", true},
		{"", false},
		{" alice", false},
		{"alice ", false},
		{"alice  bob", false},
		{"alice#bob", false},
		{string(make([]byte, MaxNameLength)), false}, // NUL bytes, invalid charset
	}
	for _, c := range cases {
		if got := IsValidName(c.name); got != c.want {
			t.Errorf("IsValidName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsValidNameLengthBoundary(t *testing.T) {
	ok := make([]byte, MaxNameLength)
	for i := range ok {
		ok[i] = 'a'
	}
	if !IsValidName(string(ok)) {
		t.Fatalf("name of exactly MaxNameLength should be valid")
	}

	tooLong := append(ok, 'a')
	if IsValidName(string(tooLong)) {
		t.Fatalf("name longer than MaxNameLength should be invalid")
	}
}
