package snapshot

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/kilupskalvis/dcbranch/internal/models"
)

// deviceEnv is the environment a filter expression is evaluated against
type deviceEnv struct {
	ID           string            `expr:"id"`
	Name         string            `expr:"name"`
	Site         string            `expr:"site"`
	Rack         string            `expr:"rack"`
	Role         string            `expr:"role"`
	Platform     string            `expr:"platform"`
	SiteName     string            `expr:"site_name"`
	RackName     string            `expr:"rack_name"`
	RoleName     string            `expr:"role_name"`
	PlatformName string            `expr:"platform_name"`
	Status       string            `expr:"status"`
	Position     int               `expr:"position"`
	Serial       string            `expr:"serial"`
	AssetTag     string            `expr:"asset_tag"`
	Tags         []string          `expr:"tags"`
	Fields       map[string]string `expr:"fields"`
}

// Filter is a compiled boolean device predicate such as
//
//	site == "dc1" && "edge" in tags && position > 10
//
// Relation variables (site, rack, role, platform) hold the referenced
// entity's ID; site_name, rack_name, role_name and platform_name hold its
// display name when the device is decorated. fields holds only the device's
// custom fields.
type Filter struct {
	program *vm.Program
}

// CompileFilter parses a filter expression
func CompileFilter(expression string) (*Filter, error) {
	program, err := expr.Compile(expression, expr.Env(deviceEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return &Filter{program: program}, nil
}

// Match reports whether a device satisfies the filter
func (f *Filter) Match(d *models.Device) (bool, error) {
	out, err := expr.Run(f.program, envFor(d))
	if err != nil {
		return false, fmt.Errorf("evaluate filter on %s: %w", d.ID, err)
	}
	return out.(bool), nil
}

// Select returns the devices matching the filter, preserving order
func (f *Filter) Select(devices []*models.Device) ([]*models.Device, error) {
	var out []*models.Device
	for _, d := range devices {
		ok, err := f.Match(d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func envFor(d *models.Device) deviceEnv {
	fields := make(map[string]string, len(d.CustomFields))
	for k, v := range d.CustomFields {
		fields[k] = v
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	env := deviceEnv{
		ID:       d.ID,
		Name:     d.Name,
		Site:     d.SiteID,
		Rack:     d.RackID,
		Role:     d.RoleID,
		Platform: d.PlatformID,
		Status:   string(d.Status),
		Position: d.Position,
		Serial:   d.Serial,
		AssetTag: d.AssetTag,
		Tags:     tags,
		Fields:   fields,
	}
	if d.Site != nil {
		env.SiteName = d.Site.Name
	}
	if d.Rack != nil {
		env.RackName = d.Rack.Name
	}
	if d.Role != nil {
		env.RoleName = d.Role.Name
	}
	if d.Platform != nil {
		env.PlatformName = d.Platform.Name
	}
	return env
}
