package checksum

import "testing"

func TestSum(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
}

func TestETagMatch(t *testing.T) {
	tag := ETag([]byte("abc"))
	if tag != `"ba7816bf8f01cfea414140de5dae2223"` {
		t.Fatalf("ETag = %s", tag)
	}
	cases := []struct {
		header string
		want   bool
	}{
		{tag, true},
		{`"other", ` + tag, true},
		{"W/" + tag, true},
		{"*", true},
		{`"other"`, false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Match(tc.header, tag); got != tc.want {
			t.Errorf("Match(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}
