package generic

// Principal is the authenticated caller.
//
// A synthesized principal has no directory record behind it: it was built
// from an unrecognized login and only lives as long as its session.
type Principal struct {
	Identity    Identity
	Synthesized bool
}

func (p Principal) ID() IdentityID { return p.Identity.ID }
func (p Principal) Role() Role     { return p.Identity.Role }

func (p Principal) IsAdmin() bool   { return p.Identity.Role == RoleAdmin }
func (p Principal) IsManager() bool { return p.Identity.Role == RoleManager }

// Actor is the principal as recorded on decisions.
func (p Principal) Actor() Actor {
	return Actor{ID: p.Identity.ID, Synthesized: p.Synthesized}
}
