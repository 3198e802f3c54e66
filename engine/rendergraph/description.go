package rendergraph

import "fmt"

// UsageDecl is one declared (pass, subresource) usage.
type UsageDecl struct {
	Subresource  string
	Access       AccessIntent
	Role         Role
	Format       Format
	Multiplicity uint32
	SelfManaged  bool
}

// PassDecl is one declared pass with its usages in declaration order.
type PassDecl struct {
	Name   string
	Type   string
	Usages []UsageDecl
}

// UsageOption refines a subresource usage beyond its access intent.
type UsageOption func(*UsageDecl)

// WithRole pins how the usage is bound instead of deriving it.
func WithRole(r Role) UsageOption {
	return func(u *UsageDecl) { u.Role = r }
}

// WithFormat declares the format this usage views the resource with.
func WithFormat(f Format) UsageOption {
	return func(u *UsageDecl) { u.Format = f }
}

// WithMultiplicity requests n physical copies of the resource.
func WithMultiplicity(n uint32) UsageOption {
	return func(u *UsageDecl) { u.Multiplicity = n }
}

// SelfManaged marks a usage whose pass performs its own transitions.
func SelfManaged() UsageOption {
	return func(u *UsageDecl) { u.SelfManaged = true }
}

// Description is the user-authored input of a graph build. Passes and usages
// may be declared in any order.
type Description struct {
	passes   []PassDecl
	byName   map[string]int
	external string
}

func NewDescription() *Description {
	return &Description{
		byName: make(map[string]int),
	}
}

// AddPass registers a pass of the given type. Registering a name twice fails.
func (d *Description) AddPass(passType, name string) error {
	if name == "" || passType == "" {
		return fmt.Errorf("add pass %q of type %q: %w", name, passType, ErrEmptyName)
	}
	if _, ok := d.byName[name]; ok {
		return fmt.Errorf("add pass %q: %w", name, ErrDuplicatePass)
	}
	d.byName[name] = len(d.passes)
	d.passes = append(d.passes, PassDecl{Name: name, Type: passType})
	return nil
}

// AddSubresourceUsage declares that passName reads and/or writes subresourceID.
func (d *Description) AddSubresourceUsage(passName, subresourceID string, access AccessIntent, opts ...UsageOption) error {
	idx, ok := d.byName[passName]
	if !ok {
		return fmt.Errorf("add usage %q to %q: %w", subresourceID, passName, ErrUnknownPass)
	}
	if subresourceID == "" {
		return fmt.Errorf("add usage to %q: %w", passName, ErrEmptyName)
	}
	if access == 0 || access&^ReadWrite != 0 {
		return fmt.Errorf("add usage %q to %q: %w", subresourceID, passName, ErrInvalidAccess)
	}
	p := &d.passes[idx]
	for _, u := range p.Usages {
		if u.Subresource == subresourceID {
			return fmt.Errorf("add usage %q to %q: %w", subresourceID, passName, ErrDuplicateUsage)
		}
	}

	u := UsageDecl{
		Subresource:  subresourceID,
		Access:       access,
		Multiplicity: 1,
	}
	for _, opt := range opts {
		opt(&u)
	}
	if u.Multiplicity == 0 {
		return fmt.Errorf("add usage %q to %q: %w", subresourceID, passName, ErrInvalidMultiplicity)
	}
	p.Usages = append(p.Usages, u)
	return nil
}

// SetExternalResourceName names the resource supplied and rotated outside the
// graph (the swapchain image).
func (d *Description) SetExternalResourceName(name string) {
	d.external = name
}

func (d *Description) ExternalResourceName() string {
	return d.external
}

// Passes returns a copy of the declared passes.
func (d *Description) Passes() []PassDecl {
	out := make([]PassDecl, len(d.passes))
	for i, p := range d.passes {
		out[i] = PassDecl{Name: p.Name, Type: p.Type, Usages: append([]UsageDecl(nil), p.Usages...)}
	}
	return out
}

// Clone returns an independent copy of the description.
func (d *Description) Clone() *Description {
	c := NewDescription()
	c.passes = d.Passes()
	for k, v := range d.byName {
		c.byName[k] = v
	}
	c.external = d.external
	return c
}
