package remote

import (
	"testing"

	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/proc"
	"github.com/stretchr/testify/assert"
)

func Test_Host(t *testing.T) {
	p := proc.Proc{IPv4: plan.MustParseIPv4("192.168.1.2")}
	assert.Equal(t, "192.168.1.2", Host(p))
	p.PubAddr = "node-2.example.org"
	assert.Equal(t, "node-2.example.org", Host(p))
}
