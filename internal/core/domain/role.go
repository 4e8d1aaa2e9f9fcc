package domain

// Role tells which side of a swap a party plays. A is the maker of the order,
// who holds the exchange secret and funds first, B is the acceptor.
type Role byte

const (
	RoleUndefined Role = 0
	RoleA         Role = 'A'
	RoleB         Role = 'B'
)

func (r Role) String() string {
	switch r {
	case RoleA, RoleB:
		return string(r)
	}
	return "-"
}

// Other returns the counterparty role.
func (r Role) Other() Role {
	switch r {
	case RoleA:
		return RoleB
	case RoleB:
		return RoleA
	}
	return RoleUndefined
}
