package report

import (
	"fmt"
	"strings"

	"loopmodel/internal/analysis"
)

const gib = 1 << 30

// Body renders rep as markdown sections, one per top-level loop.
func Body(rep *analysis.Report, profile string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rep.Program)
	if profile != "" {
		fmt.Fprintf(&b, "- **Profile**: %s\n", profile)
	}
	fmt.Fprintf(&b, "- **Run**: `%s`\n", rep.RunID)
	fmt.Fprintf(&b, "- **Generated**: %s\n", rep.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "- **Cache**: %d bytes\n", rep.CacheBytes)
	fmt.Fprintf(&b, "- **Total memory traffic**: %g GiB (%g bytes)\n", rep.TotalBytes()/gib, rep.TotalBytes())

	fn := ""
	for _, l := range rep.Loops {
		if l.Function != fn {
			fn = l.Function
			fmt.Fprintf(&b, "\n## %s\n", fn)
		}
		writeLoop(&b, l)
	}

	if len(rep.Reuse) > 0 {
		b.WriteString("\n## Reuse\n\n```\n")
		for _, r := range rep.Reuse {
			b.WriteString(r.String() + "\n")
		}
		b.WriteString("```\n")
	}
	return b.String()
}

func writeLoop(b *strings.Builder, l analysis.LoopReport) {
	fmt.Fprintf(b, "\n### Loop %d (%s)\n", l.Line, l.Var)

	b.WriteString("\n**Floating point ops (A/M/D/S)**: ")
	if l.Flops == nil {
		b.WriteString("none\n")
	} else {
		fmt.Fprintf(b, "%g / %g / %g / %g (%g total)\n", l.Flops.Adds, l.Flops.Multiplies, l.Flops.Divides, l.Flops.Specials, l.Flops.Total())
	}

	if len(l.StateVars) > 0 {
		b.WriteString("\n| State variable | Type | Reads | Writes |\n|---|---|---|---|\n")
		for _, sv := range l.StateVars {
			fmt.Fprintf(b, "| `%s` | %s | %g | %g |\n", sv.Name, sv.Type, sv.Reads, sv.Writes)
		}
	}

	if len(l.ArrayVars) > 0 {
		b.WriteString("\n| Array | Type | Loads | Stores |\n|---|---|---|---|\n")
		for _, av := range l.ArrayVars {
			fmt.Fprintf(b, "| `%s` | %s | %g | %g |\n", av.Name, av.Type, av.Loads, av.Stores)
		}
	}

	if len(l.WorkingSets) > 0 {
		b.WriteString("\n| Working set | Type | Elements | KiB |\n|---|---|---|---|\n")
		for _, ws := range l.WorkingSets {
			fmt.Fprintf(b, "| `%s` | %s | %d | %g |\n", ws.Name, ws.Type, ws.Elements, float64(ws.Bytes)/1024)
		}
	}

	if len(l.Traffic) > 0 {
		b.WriteString("\n| Traffic | Type | Words | Bytes | Regions |\n|---|---|---|---|---|\n")
		for _, t := range l.Traffic {
			regions := make([]string, len(t.Regions))
			for i, r := range t.Regions {
				regions[i] = fmt.Sprintf("%s %d×%g", r.Class, r.Size, r.Count)
			}
			fmt.Fprintf(b, "| `%s` | %s | %g | %g | %s |\n", t.Name, t.Type, t.Words, t.Bytes, strings.Join(regions, ", "))
		}
	}
	fmt.Fprintf(b, "\n**Memory traffic**: %g GiB (%g bytes)\n", l.TotalBytes/gib, l.TotalBytes)
}
