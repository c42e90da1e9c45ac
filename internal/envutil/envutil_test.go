package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent(t *testing.T) {
	tests := []struct {
		value string
		want  Env
	}{
		{"", Production},
		{"production", Production},
		{"staging", Production},
		{"dev", Development},
		{"Development", Development},
		{" local ", Development},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvVar, tt.value)
			assert.Equal(t, tt.want, Current())
			assert.Equal(t, tt.want == Development, IsDev())
		})
	}
}
