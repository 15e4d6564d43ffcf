package utils

import (
	"slices"
	"strings"
	"testing"
)

func TestCleanFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"【MV】Song: Title", "【MV】Song Title"},
		{"a/b\\c", "abc"},
		{"  spaced   out  ", "spaced out"},
		{"what?", "what"},
		{"...dots...", "dots"},
		{"<tag> \"quoted\" |pipe|", "tag quoted pipe"},
		{"测试 视频", "测试 视频"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := CleanFileName(tt.input)
			if got != tt.expected {
				t.Errorf("\nInput:    %s\nExpected: %s\nGot:      %s", tt.input, tt.expected, got)
			}
		})
	}
}

func TestExtractBVID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"BV1xx411c7mD", "BV1xx411c7mD"},
		{"https://www.bilibili.com/video/BV1GJ411x7h7/?spm_id_from=333", "BV1GJ411x7h7"},
		{"https://www.bilibili.com/video/av170001", ""},
		{"BV123", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExtractBVID(tt.input); got != tt.expected {
				t.Errorf("ExtractBVID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestReadBVList(t *testing.T) {
	input := `# my list
https://www.bilibili.com/video/BV1GJ411x7h7 # rickroll
BV1xx411c7mD

not a video
BV1GJ411x7h7
  BV1Q541167Qg
`
	got, err := ReadBVList(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadBVList: %v", err)
	}
	want := []string{"BV1GJ411x7h7", "BV1xx411c7mD", "BV1Q541167Qg"}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML(`<em class="keyword">Go</em> 教程 &amp; 实战`)
	if got != "Go 教程 & 实战" {
		t.Errorf("StripHTML = %q", got)
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{999, "999"},
		{12_345, "1.2万"},
		{340_000_000, "3.4亿"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.n); got != tt.want {
			t.Errorf("FormatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
