package loaders

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pelletier/go-toml/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

var ErrInvalidGraphFile = errors.New("invalid graph description file")

// UsageSpec is one subresource usage of a pass as written in a description
// file. An empty format or role and a zero multiplicity take the compiler's
// defaults.
type UsageSpec struct {
	Resource     string `toml:"resource" hcl:"resource,label"`
	Access       string `toml:"access" hcl:"access"`
	Format       string `toml:"format,omitempty" hcl:"format,optional"`
	Role         string `toml:"role,omitempty" hcl:"role,optional"`
	Multiplicity uint32 `toml:"multiplicity,omitempty" hcl:"multiplicity,optional"`
	SelfManaged  bool   `toml:"self_managed,omitempty" hcl:"self_managed,optional"`
}

type PassSpec struct {
	Type   string      `toml:"type" hcl:"type,label"`
	Name   string      `toml:"name" hcl:"name,label"`
	Usages []UsageSpec `toml:"usage" hcl:"usage,block"`
}

// GraphFile is the on-disk form of a graph description.
type GraphFile struct {
	External string     `toml:"external,omitempty" hcl:"external,optional"`
	Passes   []PassSpec `toml:"pass" hcl:"pass,block"`
}

// Variables are exposed to HCL descriptions so multiplicities can follow the
// engine configuration.
type Variables struct {
	FramesInFlight  uint32
	SwapchainImages uint32
}

func (v Variables) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"frames_in_flight": cty.NumberUIntVal(uint64(v.FramesInFlight)),
			"swapchain_images": cty.NumberUIntVal(uint64(v.SwapchainImages)),
		},
	}
}

type GraphTOMLLoader struct{}

func (GraphTOMLLoader) Load(path string, vars Variables) (*rendergraph.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	gf, err := ParseGraphTOML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gf.Description()
}

// ParseGraphTOML decodes a TOML description. Unknown keys are rejected.
func ParseGraphTOML(data []byte) (*GraphFile, error) {
	var gf GraphFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&gf); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", ErrInvalidGraphFile, row, col, derr.Error())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidGraphFile, err)
	}
	return &gf, nil
}

type GraphHCLLoader struct{}

func (GraphHCLLoader) Load(path string, vars Variables) (*rendergraph.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	gf, err := ParseGraphHCL(data, path, vars)
	if err != nil {
		return nil, err
	}
	return gf.Description()
}

// ParseGraphHCL decodes an HCL description, evaluating expressions against
// vars.
func ParseGraphHCL(data []byte, filename string, vars Variables) (*GraphFile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %s", ErrInvalidGraphFile, filename, diags.Error())
	}

	var gf GraphFile
	diags = gohcl.DecodeBody(file.Body, vars.evalContext(), &gf)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode %s: %s", ErrInvalidGraphFile, filename, diags.Error())
	}
	return &gf, nil
}

// Description replays the file into a graph description. Passes are added
// first so usages may reference any pass in the file.
func (gf *GraphFile) Description() (*rendergraph.Description, error) {
	d := rendergraph.NewDescription()
	if gf.External != "" {
		d.SetExternalResourceName(gf.External)
	}
	for _, p := range gf.Passes {
		if err := d.AddPass(p.Type, p.Name); err != nil {
			return nil, fmt.Errorf("pass %q: %w", p.Name, err)
		}
	}
	for _, p := range gf.Passes {
		for _, u := range p.Usages {
			access, opts, err := u.options()
			if err != nil {
				return nil, fmt.Errorf("pass %q resource %q: %w", p.Name, u.Resource, err)
			}
			if err := d.AddSubresourceUsage(p.Name, u.Resource, access, opts...); err != nil {
				return nil, fmt.Errorf("pass %q resource %q: %w", p.Name, u.Resource, err)
			}
		}
	}
	core.LogDebug("graph description: %d passes, external %q", len(gf.Passes), gf.External)
	return d, nil
}

func (u UsageSpec) options() (rendergraph.AccessIntent, []rendergraph.UsageOption, error) {
	access, err := rendergraph.ParseAccessIntent(u.Access)
	if err != nil {
		return 0, nil, err
	}
	var opts []rendergraph.UsageOption
	if u.Format != "" {
		f, err := rendergraph.ParseFormat(u.Format)
		if err != nil {
			return 0, nil, err
		}
		opts = append(opts, rendergraph.WithFormat(f))
	}
	if u.Role != "" {
		r, err := rendergraph.ParseRole(u.Role)
		if err != nil {
			return 0, nil, err
		}
		opts = append(opts, rendergraph.WithRole(r))
	}
	if u.Multiplicity != 0 {
		opts = append(opts, rendergraph.WithMultiplicity(u.Multiplicity))
	}
	if u.SelfManaged {
		opts = append(opts, rendergraph.SelfManaged())
	}
	return access, opts, nil
}

// MarshalGraphTOML writes a description back out in the TOML form.
func MarshalGraphTOML(d *rendergraph.Description) ([]byte, error) {
	gf := GraphFile{External: d.ExternalResourceName()}
	for _, p := range d.Passes() {
		ps := PassSpec{Type: p.Type, Name: p.Name}
		for _, u := range p.Usages {
			us := UsageSpec{Resource: u.Subresource, Access: u.Access.String()}
			if u.Format != rendergraph.FormatUndefined {
				us.Format = u.Format.String()
			}
			if u.Role != rendergraph.RoleAuto {
				us.Role = u.Role.String()
			}
			if u.Multiplicity > 1 {
				us.Multiplicity = u.Multiplicity
			}
			us.SelfManaged = u.SelfManaged
			ps.Usages = append(ps.Usages, us)
		}
		gf.Passes = append(gf.Passes, ps)
	}
	return toml.Marshal(gf)
}
