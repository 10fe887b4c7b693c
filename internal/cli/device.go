package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/kilupskalvis/dcbranch/internal/snapshot"
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Stage device changes on the active branch",
	Long: `Create, update, delete and list devices on the active branch.
Changes are staged in the branch's snapshot and reach the persisted
inventory only when the branch is merged.`,
}

var deviceAddCmd = &cobra.Command{
	Use:   "add [id]",
	Short: "Stage a new device",
	Long: `Stage a new device on the active branch. A random ID is generated when
none is given.

Examples:
  dcb device add --name leaf-01 --site dc1 --rack r1 --role leaf
  dcb device add sw9 --name spine-09 --site dc1 --tag core --field owner=netops`,
	Args: cobra.MaximumNArgs(1),
	Run:  runDeviceAdd,
}

var deviceSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Stage an update to an existing device",
	Long: `Stage an update to a device on the active branch. Only flags that are
given change; everything else keeps its current value.

Examples:
  dcb device set sw1 --status offline
  dcb device set sw1 --rack r2 --position 12`,
	Args: cobra.ExactArgs(1),
	Run:  runDeviceSet,
}

var deviceRmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"delete"},
	Short:   "Stage device deletions",
	Args:    cobra.MinimumNArgs(1),
	Run:     runDeviceRm,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices on a branch",
	Long: `List devices in a branch's snapshot, ordered by ID.

The --filter flag takes a boolean expression over id, name, site, rack,
role, platform, site_name, rack_name, role_name, platform_name, status,
position, serial, asset_tag, tags and fields (custom fields).

Examples:
  dcb device list
  dcb device list --branch main
  dcb device list --filter 'site == "dc1" && status != "active"'
  dcb device list --filter '"edge" in tags'`,
	Run: runDeviceList,
}

type deviceFlags struct {
	name     string
	site     string
	rack     string
	role     string
	platform string
	position int
	status   string
	serial   string
	assetTag string
	tags     []string
	fields   map[string]string
}

var (
	addFlags   deviceFlags
	setFlags   deviceFlags
	listBranch string
	listFilter string
)

func (f *deviceFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.name, "name", "", "Device name")
	fs.StringVar(&f.site, "site", "", "Site ID")
	fs.StringVar(&f.rack, "rack", "", "Rack ID")
	fs.StringVar(&f.role, "role", "", "Device role ID")
	fs.StringVar(&f.platform, "platform", "", "Platform ID")
	fs.IntVar(&f.position, "position", 0, "Rack unit position")
	fs.StringVar(&f.status, "status", "", "Status (planned, staged, active, offline, decommissioning)")
	fs.StringVar(&f.serial, "serial", "", "Serial number")
	fs.StringVar(&f.assetTag, "asset-tag", "", "Asset tag")
	fs.StringSliceVar(&f.tags, "tag", nil, "Tag (repeatable)")
	fs.StringToStringVar(&f.fields, "field", nil, "Custom field key=value (repeatable)")
}

// apply copies the flags that were set on cmd onto d
func (f *deviceFlags) apply(cmd *cobra.Command, d *models.Device) {
	changed := cmd.Flags().Changed
	if changed("name") {
		d.Name = f.name
	}
	if changed("site") {
		d.SiteID = f.site
	}
	if changed("rack") {
		d.RackID = f.rack
	}
	if changed("role") {
		d.RoleID = f.role
	}
	if changed("platform") {
		d.PlatformID = f.platform
	}
	if changed("position") {
		d.Position = f.position
	}
	if changed("status") {
		d.Status = models.DeviceStatus(f.status)
	}
	if changed("serial") {
		d.Serial = f.serial
	}
	if changed("asset-tag") {
		d.AssetTag = f.assetTag
	}
	if changed("tag") {
		d.Tags = f.tags
	}
	if changed("field") {
		if d.CustomFields == nil {
			d.CustomFields = make(map[string]string, len(f.fields))
		}
		for k, v := range f.fields {
			if v == "" {
				delete(d.CustomFields, k)
				continue
			}
			d.CustomFields[k] = v
		}
	}
}

func init() {
	addFlags.register(deviceAddCmd)
	setFlags.register(deviceSetCmd)
	deviceListCmd.Flags().StringVar(&listBranch, "branch", "", "Branch to list (default: active branch)")
	deviceListCmd.Flags().StringVar(&listFilter, "filter", "", "Filter expression")
	_ = deviceListCmd.RegisterFlagCompletionFunc("branch", completeBranches(true))

	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceSetCmd)
	deviceCmd.AddCommand(deviceRmCmd)
	deviceCmd.AddCommand(deviceListCmd)
}

func runDeviceAdd(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	id := uuid.NewString()
	if len(args) > 0 {
		id = args[0]
	}

	d := &models.Device{}
	addFlags.apply(cmd, d)
	if err := c.Service.StageCreate(id, d); err != nil {
		exitError("%v", err)
	}
	c.Save()

	color.New(color.FgGreen).Printf("+ %s", id)
	fmt.Printf(" (%s) staged on %s\n", d.Name, c.Service.ActiveBranch().Name)
}

func runDeviceSet(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	id := args[0]
	snap, err := c.Service.ActiveSnapshot()
	if err != nil {
		exitError("%v", err)
	}
	current := snap.Get(id)
	if current == nil {
		exitError("device %q not found on branch %s", id, c.Service.ActiveBranch().Name)
	}

	d := current.Columns()
	setFlags.apply(cmd, d)
	if err := c.Service.StageUpdate(id, d); err != nil {
		exitError("%v", err)
	}
	c.Save()

	color.New(color.FgYellow).Printf("~ %s", id)
	fmt.Printf(" staged on %s\n", c.Service.ActiveBranch().Name)
}

func runDeviceRm(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	red := color.New(color.FgRed)
	for _, id := range args {
		if err := c.Service.StageDelete(id); err != nil {
			c.Save()
			exitError("%v", err)
		}
		red.Printf("- %s\n", id)
	}
	c.Save()
}

func runDeviceList(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	branch := listBranch
	if branch == "" {
		branch = c.Service.ActiveBranch().Name
	}
	snap, err := c.Service.Snapshot(branch)
	if err != nil {
		exitError("%v", err)
	}

	devices := snap.List()
	if listFilter != "" {
		f, err := snapshot.CompileFilter(listFilter)
		if err != nil {
			exitError("%v", err)
		}
		if devices, err = f.Select(devices); err != nil {
			exitError("%v", err)
		}
	}

	if len(devices) == 0 {
		fmt.Println("No devices")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSITE\tRACK\tPOS\tROLE\tPLATFORM\tSTATUS\tTAGS")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID,
			d.Name,
			siteName(d),
			rackName(d),
			position(d),
			roleName(d),
			platformName(d),
			d.Status,
			strings.Join(d.Tags, ","),
		)
	}
	w.Flush()
}

func siteName(d *models.Device) string {
	if d.Site != nil {
		return d.Site.Name
	}
	return d.SiteID
}

func rackName(d *models.Device) string {
	if d.Rack != nil {
		return d.Rack.Name
	}
	return d.RackID
}

func roleName(d *models.Device) string {
	if d.Role != nil {
		return d.Role.Name
	}
	return d.RoleID
}

func platformName(d *models.Device) string {
	if d.Platform != nil {
		return d.Platform.Name
	}
	return d.PlatformID
}

func position(d *models.Device) string {
	if d.Position == 0 {
		return "-"
	}
	return fmt.Sprintf("U%d", d.Position)
}
