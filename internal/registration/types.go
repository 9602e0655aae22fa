package registration

import "time"

// Record is a device registration record.
//
// A record is created on first contact when policy allows and is never
// deleted by this subsystem. Only the site assignment may change after
// creation (group reassignment, performed by external collaborators).
type Record struct {
	// ID is the internal record identifier.
	ID string `json:"id"`

	// HardwareID is the unique device hardware identifier.
	HardwareID string `json:"hardware_id"`

	// SiteToken is the site/group the device was assigned to.
	SiteToken string `json:"site_token"`

	// SpecificationToken classifies the device's command and encoding
	// contract; used by the command router. May be empty, in which case
	// commands fall through to the default destination.
	SpecificationToken string `json:"specification_token,omitempty"`

	// RegisteredAt is when the device was first admitted.
	RegisteredAt time.Time `json:"registered_at"`
}

// Clone returns an independent copy of the record so cache entries cannot
// be mutated by callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Policy controls how previously unknown devices are admitted.
type Policy struct {
	// AllowNewDevices admits devices not seen before.
	AllowNewDevices bool

	// AutoAssignSite assigns DefaultSiteToken when a registration request
	// carries no site token.
	AutoAssignSite bool

	// DefaultSiteToken is the site used by auto-assignment.
	DefaultSiteToken string
}
