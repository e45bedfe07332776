// Package hostfile reads host lists in the mpirun -hostfile format:
//
//	192.168.1.2 slots=4 public_addr=node2 # comment
package hostfile

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/pkg/errors"
)

var errInvalidHostfile = errors.New("invalid hostfile")

func ParseFile(filename string) (plan.HostList, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	hl, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return hl, nil
}

func Parse(text string) (plan.HostList, error) {
	return Read(strings.NewReader(text))
}

// Read parses one host per non-empty line of r.
func Read(r io.Reader) (plan.HostList, error) {
	var hl plan.HostList
	s := bufio.NewScanner(r)
	for n := 1; s.Scan(); n++ {
		line, _, _ := strings.Cut(s.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		h, err := parseHost(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		hl = append(hl, *h)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return hl, nil
}

func parseHost(fields []string) (*plan.HostSpec, error) {
	ipv4, err := plan.ParseIPv4(fields[0])
	if err != nil {
		return nil, errors.Wrapf(err, "%q", fields[0])
	}
	h := plan.HostSpec{
		IPv4:       ipv4,
		Slots:      1,
		PublicAddr: plan.FormatIPv4(ipv4),
	}
	for _, kv := range fields[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.Wrapf(errInvalidHostfile, "%q", kv)
		}
		switch k {
		case "slots":
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, errors.Wrapf(errInvalidHostfile, "slots=%q", v)
			}
			h.Slots = n
		case "public_addr":
			h.PublicAddr = v
		default:
			return nil, errors.Wrapf(errInvalidHostfile, "unknown key %q", k)
		}
	}
	return &h, nil
}
