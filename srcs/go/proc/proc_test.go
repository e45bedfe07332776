package proc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_updatedEnvFrom(t *testing.T) {
	envs := updatedEnvFrom(Envs{`X`: `2`}, []string{`X=1`, `Y=Z=2`, `broken`})
	assert.Equal(t, []string{`X=2`, `Y=Z=2`}, envs)
}

func Test_Merge(t *testing.T) {
	e := Envs{`A`: `1`, `B`: `1`}
	g := Merge(e, Envs{`B`: `2`})
	assert.Equal(t, Envs{`A`: `1`, `B`: `2`}, g)
	g.AddIfMissing(`A`, `3`)
	g.AddIfMissing(`C`, `3`)
	assert.Equal(t, `1`, g[`A`])
	assert.Equal(t, `3`, g[`C`])
	assert.Equal(t, `1`, e[`B`])
}

func Test_Script(t *testing.T) {
	p := Proc{
		Prog: `ps-run`,
		Args: []string{`-procs-id`, `1`},
		Envs: Envs{`B`: `x y`, `A`: `1`},
	}
	s := p.Script()
	assert.True(t, strings.HasPrefix(s, "env \\\n\tA=\"1\" \\\n\tB=\"x y\" \\\n\tps-run"), s)
	assert.True(t, strings.HasSuffix(s, "\t-procs-id \\\n\t1\n"), s)
}
