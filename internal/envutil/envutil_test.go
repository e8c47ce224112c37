package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDev(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"dev", true},
		{"development", true},
		{"DEV", true},
		{"Development", true},
		{"", false},
		{"production", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvVar, tt.value)
			assert.Equal(t, tt.want, IsDev())
		})
	}
}
