package sanitizer

import "testing"

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Airport   Road ", "Airport Road"},
		{"plain", "plain"},
		{"\ttabbed\tname\n", "tabbed name"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+919876543210", "+919876543210"},
		{"98765 43210", "+919876543210"},
		{"not a phone", ""},
		{"", ""},
		{"12", ""},
	}
	for _, tc := range cases {
		if got := SanitizePhone(tc.in); got != tc.want {
			t.Errorf("SanitizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSamePhone(t *testing.T) {
	if !SamePhone("+919876543210", "98765 43210") {
		t.Error("formatting differences must not break matching")
	}
	if SamePhone("+919876543210", "+919876543211") {
		t.Error("different numbers must not match")
	}
	if !SamePhone("lobby-desk", "lobby-desk") {
		t.Error("unparseable but identical strings must still match")
	}
	if SamePhone("", "") {
		t.Error("two empty values must not match")
	}
}
