package fetch

import "testing"

func TestObjectName(t *testing.T) {
	tests := []struct {
		contract, key, ext string
		want               string
	}{
		{"C1", "balance", "zst", "state/C1/balance.zst"},
		{"C1", "balance", "", "state/C1/balance"},
		{"C1", "a/b", "gz", "state/C1/a%2Fb.gz"},
		{"CDLZ", "admin key", "", "state/CDLZ/admin%20key"},
	}

	for _, tt := range tests {
		if got := ObjectName(tt.contract, tt.key, tt.ext); got != tt.want {
			t.Errorf("ObjectName(%q, %q, %q) = %q, want %q", tt.contract, tt.key, tt.ext, got, tt.want)
		}
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/", ""},
		{"prefix", "prefix/"},
		{"prefix/", "prefix/"},
		{"/a/b/c", "a/b/c/"},
		{"a/b/c/", "a/b/c/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizePrefix(tt.input); got != tt.want {
				t.Errorf("NormalizePrefix(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
