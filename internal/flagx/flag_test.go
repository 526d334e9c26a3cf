package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	configFlags := []string{"-c", "--config"}

	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{"separate value", []string{"-c", "settlement.json", "-a", ":50051"}, configFlags, []string{"-c", "settlement.json"}},
		{"equals form", []string{"--config=alt.json", "-o", ":9090"}, configFlags, []string{"--config=alt.json"}},
		{"order preserved", []string{"--config=first.json", "-c", "second.json", "-x", "1"}, configFlags,
			[]string{"--config=first.json", "-c", "second.json"}},
		{"nothing allowed present", []string{"-x", "1", "--y=2", "positional"}, configFlags, []string{}},
		{"trailing flag without value", []string{"-c"}, configFlags, []string{"-c"}},
		{"next dash token is not a value", []string{"-c", "--config=alt.json"}, configFlags, []string{"-c", "--config=alt.json"}},
		{"value may contain dashes after equals", []string{"--config=--weird.json"}, []string{"--config"}, []string{"--config=--weird.json"}},
		{"several allowed flags", []string{"-a", ":50051", "-d", "postgres://x", "-o", ":9090"}, []string{"-a", "-d"},
			[]string{"-a", ":50051", "-d", "postgres://x"}},
		{"empty", []string{}, configFlags, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func Test_jsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short -c with value", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/path/short.json"}
		assert.Equal(t, "/path/short.json", JsonConfigFlags())
	})

	t.Run("long -config with value", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", "/path/long.json"}
		assert.Equal(t, "/path/long.json", JsonConfigFlags())
	})

	t.Run("unknown flags are ignored", func(t *testing.T) {
		os.Args = []string{"testbin", "-x", "1", "-y", "2"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("multiple flags, last wins", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/path/1.json", "-config", "/path/2.json"}
		assert.Equal(t, "/path/2.json", JsonConfigFlags())
	})
}

func Test_envFileFlag(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("present", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "conf.json", "-env", "/etc/settlement.env"}
		assert.Equal(t, "/etc/settlement.env", EnvFileFlag())
	})

	t.Run("absent", func(t *testing.T) {
		os.Args = []string{"testbin", "-a", ":50051"}
		assert.Empty(t, EnvFileFlag())
	})
}
