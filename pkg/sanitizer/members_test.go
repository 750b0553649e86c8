package sanitizer

import "testing"

func TestNormalizeMembers(t *testing.T) {
	cases := []struct {
		name    string
		in      any
		want    int
		wantErr bool
	}{
		{"nil defaults to one", nil, 1, false},
		{"int", 3, 3, false},
		{"int64", int64(4), 4, false},
		{"whole float", float64(5), 5, false},
		{"fractional float", 2.5, 0, true},
		{"numeric string", "7", 7, false},
		{"padded numeric string", "  7 ", 7, false},
		{"empty string defaults to one", "", 1, false},
		{"non-numeric string", "several", 0, true},
		{"single-element array", []any{float64(2)}, 2, false},
		{"nested single-element array", []any{[]any{"3"}}, 3, false},
		{"multi-element array", []any{1, 2}, 0, true},
		{"zero", 0, 0, true},
		{"negative", -1, 0, true},
		{"over the cap", MaxMembers + 1, 0, true},
		{"at the cap", MaxMembers, MaxMembers, false},
		{"bool", true, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeMembers(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NormalizeMembers(%v): expected error, got %d", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeMembers(%v): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("NormalizeMembers(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}
