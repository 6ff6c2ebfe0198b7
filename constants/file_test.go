package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapExtToFormat(t *testing.T) {
	tests := []struct {
		ext  string
		want FormatFamily
	}{
		{"jpg", IMAGE},
		{".JPEG", IMAGE},
		{"HEIC", IMAGE},
		{"pdf", PDF},
		{".PDF", PDF},
		{"csv", DOCUMENT},
		{"xlsx", DOCUMENT},
		{"docx", DOCUMENT},
		{"md", DOCUMENT},
		{"rar", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapExtToFormat(tt.ext), "ext %q", tt.ext)
	}
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, "jpg", NormalizeExt(".JPG"))
	assert.Equal(t, "pdf", NormalizeExt("pdf"))
	assert.Equal(t, "", NormalizeExt("."))
}

func TestIsHEICExt(t *testing.T) {
	assert.True(t, IsHEICExt(".heic"))
	assert.True(t, IsHEICExt("HEIF"))
	assert.False(t, IsHEICExt("jpg"))
}
