package render

import (
	"encoding/json"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"launchpad/internal/domain"
	"launchpad/internal/resolve"
	launchpadsdk "launchpad/sdk/go"
)

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Organizations(w io.Writer, orgs []launchpadsdk.Organization) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Slug", "Name", "Permissions"})
	for _, o := range orgs {
		tw.AppendRow(table.Row{o.ID, o.Slug, o.Name, permissions(o.Can)})
	}
	tw.Render()
}

func Environments(w io.Writer, envs []launchpadsdk.Environment) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Slug", "Name", "Permissions"})
	for _, e := range envs {
		tw.AppendRow(table.Row{e.ID, e.Slug, e.Name, permissions(e.Can)})
	}
	tw.Render()
}

// Resolution prints one row per resolved level, outermost first.
func Resolution(w io.Writer, p resolve.Path, res resolve.Resolution) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Level", "Slug", "ID", "Read", "Update", "Delete"})
	for _, row := range res.Levels() {
		tw.AppendRow(table.Row{row.Level, row.Ref.Slug, row.Ref.ID, row.Ref.Can.Read, row.Ref.Can.Update, row.Ref.Can.Delete})
	}
	tw.SetCaption("%s", p.String())
	tw.Render()
}

func Deployment(w io.Writer, d launchpadsdk.Deployment) {
	tw := newTable(w)
	tw.AppendRows([]table.Row{
		{"ID", d.ID},
		{"Environment", d.EnvironmentID},
		{"Status", d.Status},
		{"Runtime", d.Runtime},
		{"Arch", d.Arch},
		{"Memory", d.Memory},
		{"Timeout", d.Timeout},
		{"Created", d.CreatedAt},
	})
	tw.Render()
}

func Deployments(w io.Writer, ds []launchpadsdk.Deployment) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Status", "Runtime", "Arch", "Memory", "Timeout", "By", "Created"})
	for _, d := range ds {
		tw.AppendRow(table.Row{d.ID, d.Status, d.Runtime, d.Arch, d.Memory, d.Timeout, d.CreatedBy, d.CreatedAt})
	}
	tw.Render()
}

// Events prints the emulator event log, newest first.
func Events(w io.Writer, events []domain.Event) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
	for _, e := range events {
		entity := e.EntityKind
		if e.EntityID != "" {
			entity += ":" + e.EntityID
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, entity, e.ActorID})
	}
	tw.Render()
}

func APIKeys(w io.Writer, keys []domain.APIKey) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created", "Last Used"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt, k.LastUsedAt})
	}
	tw.Render()
}

func Grants(w io.Writer, grants []domain.Grant) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Actor", "Kind", "Resource", "Permissions"})
	for _, g := range grants {
		tw.AppendRow(table.Row{g.ActorID, g.ResourceKind, g.ResourceID, permissions(launchpadsdk.Can(g.Can))})
	}
	tw.Render()
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func permissions(c launchpadsdk.Can) string {
	out := ""
	for _, p := range []struct {
		ok   bool
		name string
	}{{c.Read, "read"}, {c.Update, "update"}, {c.Delete, "delete"}} {
		if !p.ok {
			continue
		}
		if out != "" {
			out += ","
		}
		out += p.name
	}
	if out == "" {
		return "-"
	}
	return out
}
