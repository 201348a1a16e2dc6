package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("DVF_TEST_DIR", "/var/lib/dvf")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain path untouched", in: "/tmp/dvf.db", want: "/tmp/dvf.db"},
		{name: "tilde prefix", in: "~/data/dvf.db", want: filepath.Join(home, "data", "dvf.db")},
		{name: "bare tilde", in: "~", want: home},
		{name: "env var", in: "$DVF_TEST_DIR/dvf.db", want: "/var/lib/dvf/dvf.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
