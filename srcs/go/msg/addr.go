package msg

import (
	"fmt"

	"github.com/pkg/errors"
)

// Role is the 4-bit kind of an endpoint.
type Role uint8

const (
	RoleServer      Role = iota // 0
	RoleWorkerParam Role = iota
	RoleWorkerLayer Role = iota
	RoleStub        Role = iota
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleWorkerParam:
		return "worker-param"
	case RoleWorkerLayer:
		return "worker-layer"
	case RoleStub:
		return "stub"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) IsWorker() bool {
	return r == RoleWorkerParam || r == RoleWorkerLayer
}

const (
	groupBits  = 16
	idBits     = 12
	roleBits   = 4
	targetBits = 24

	MaxGroup  = 1<<groupBits - 1
	MaxID     = 1<<idBits - 1
	MaxRole   = 1<<roleBits - 1
	MaxTarget = 1<<targetBits - 1
)

var ErrFieldOverflow = errors.New("header field overflow")

// Addr identifies an endpoint by (group, id, role).
type Addr struct {
	Group int
	ID    int
	Role  Role
}

func (a Addr) String() string {
	return fmt.Sprintf("%s(%d,%d)", a.Role, a.Group, a.ID)
}

// Stub is the address of the dispatch loop of the local process.
var Stub = Addr{Role: RoleStub}

func PackAddr(a Addr) (uint32, error) {
	if a.Group < 0 || a.Group > MaxGroup {
		return 0, errors.Wrapf(ErrFieldOverflow, "group %d", a.Group)
	}
	if a.ID < 0 || a.ID > MaxID {
		return 0, errors.Wrapf(ErrFieldOverflow, "id %d", a.ID)
	}
	if a.Role > MaxRole {
		return 0, errors.Wrapf(ErrFieldOverflow, "role %d", a.Role)
	}
	return uint32(a.Group)<<(idBits+roleBits) | uint32(a.ID)<<roleBits | uint32(a.Role), nil
}

func UnpackAddr(x uint32) Addr {
	return Addr{
		Group: int(x >> (idBits + roleBits)),
		ID:    int(x>>roleBits) & MaxID,
		Role:  Role(x & MaxRole),
	}
}

func PackControl(t Type, target int) (uint32, error) {
	if target < 0 || target > MaxTarget {
		return 0, errors.Wrapf(ErrFieldOverflow, "target %d", target)
	}
	return uint32(t)<<targetBits | uint32(target), nil
}

func UnpackControl(x uint32) (Type, int) {
	return Type(x >> targetBits), int(x & MaxTarget)
}
