package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{name: "international", phone: "+12025550123", want: "+*******0123"},
		{name: "short international", phone: "+1234", want: "+****"},
		{name: "bare plus", phone: "+", want: "+"},
		{name: "no prefix", phone: "2025550123", want: "******0123"},
		{name: "short no prefix", phone: "123", want: "***"},
		{name: "empty", phone: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskPhoneNumber(tt.phone))
		})
	}
}

func TestMaskCallbackURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "path hidden", url: "https://hooks.example.com/private/token123", want: "https://hooks.example.com/***"},
		{name: "port kept", url: "https://hooks.example.com:8443/notify", want: "https://hooks.example.com:8443/***"},
		{name: "bare host", url: "https://hooks.example.com", want: "https://hooks.example.com"},
		{name: "root path", url: "https://hooks.example.com/", want: "https://hooks.example.com"},
		{name: "no host", url: "not-a-real-url", want: "not-a-re***"},
		{name: "short garbage", url: "abc", want: "***"},
		{name: "empty", url: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskCallbackURL(tt.url))
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "********", MaskSecret("a-much-longer-signing-secret"))
}

func TestMaskGroupID(t *testing.T) {
	assert.Equal(t, "", MaskGroupID(""))
	assert.Equal(t, "****", MaskGroupID("abcd"))
	assert.Equal(t, "************wxyz", MaskGroupID("group1234567wxyz"))
}
