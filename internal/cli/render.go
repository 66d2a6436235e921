package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-forma/analysis"
	"github.com/RyanBlaney/sonido-forma/structure"
)

var titleCaser = cases.Title(language.English)

func render(w io.Writer, format string, res *analysis.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		data, err := toYAML(res)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "table":
		return renderTable(w, res)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// toYAML encodes v as block-style YAML using its JSON field names
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to convert result to yaml: %w", err)
	}
	blockStyle(&node)
	return yaml.Marshal(&node)
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// sectionTitle renders a label and variant as "Pre-Chorus 2"
func sectionTitle(s structure.Section) string {
	label := s.Label
	if label == "" {
		label = structure.LabelSection
	}
	title := titleCaser.String(string(label))
	if s.Variant > 0 {
		title = fmt.Sprintf("%s %d", title, s.Variant)
	}
	return title
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds*10 + 0.5)
	return fmt.Sprintf("%d:%02d.%d", total/600, (total/10)%60, total%10)
}

type chordSpan struct {
	start analysis.ChordEntry
	beats int
}

// chordSpans collapses consecutive beats with the same chord
func chordSpans(entries []analysis.ChordEntry) []chordSpan {
	var spans []chordSpan
	for _, e := range entries {
		if n := len(spans); n > 0 && spans[n-1].start.Chord == e.Chord {
			spans[n-1].beats++
			continue
		}
		spans = append(spans, chordSpan{start: e, beats: 1})
	}
	return spans
}

func renderTable(w io.Writer, res *analysis.Result) error {
	key := "unknown"
	if res.Key.Known() {
		key = fmt.Sprintf("%s (%.2f)", res.Key.Name(), res.Key.Confidence)
	}
	fmt.Fprintf(w, "Key: %s  Tempo: %.1f BPM  Meter: %s  Genre: %s\n\n",
		key, res.TempoBPM, res.TimeSignature, res.Diagnostics.Genre)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSECTION\tSTART\tEND\tCLUSTER\tCONFIDENCE\tREASON")
	for _, s := range res.Sections {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%.2f\t%s\n",
			s.Index+1, sectionTitle(s), formatClock(s.StartTime), formatClock(s.EndTime),
			s.ClusterID, s.Confidence, s.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.Chords) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BAR\tBEAT\tTIME\tCHORD\tBEATS")
		for _, span := range chordSpans(res.Chords) {
			chord := span.start.Chord
			if span.start.Corrected {
				chord += "*"
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\n",
				span.start.Bar, span.start.Beat, formatClock(span.start.Timestamp), chord, span.beats)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(res.ReviewFlags) > 0 {
		fmt.Fprintln(w)
		for _, flag := range res.ReviewFlags {
			ids := make([]string, len(flag.Sections))
			for i, s := range flag.Sections {
				ids[i] = fmt.Sprint(s + 1)
			}
			fmt.Fprintf(w, "review sections %s: %s\n", strings.Join(ids, ", "), flag.Reason)
		}
	}

	if len(res.Merges) > 0 {
		fmt.Fprintln(w)
		for _, m := range res.Merges {
			fmt.Fprintf(w, "merged sections %d and %d (%s)\n", m.Left+1, m.Right+1, m.Reason)
		}
	}
	return nil
}
