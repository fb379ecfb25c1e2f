package report

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"
)

const htmlHead = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: "Segoe UI", sans-serif; margin: 2em; background: #1e1e1e; color: #d4d4d4; }
h1, h2 { font-weight: 600; }
.passed { color: #4ec94e; }
.failed { color: #f14c4c; }
.story { border: 1px solid #3c3c3c; border-radius: 6px; padding: 1em; margin: 1em 0; }
.step { margin: .6em 0; padding: .5em; background: #252526; border-radius: 4px; }
.step.fail { border-left: 3px solid #f14c4c; }
.step.ok { border-left: 3px solid #4ec94e; }
.meta { color: #808080; font-size: .85em; }
.channel { display: inline-block; padding: 0 .5em; border-radius: 3px; font-size: .8em; margin-right: .5em; }
.channel.server { background: #264f78; }
.channel.client { background: #4b3978; }
.channel.op { background: #785c26; }
.channel.mineflayer { background: #2d6a4f; }
.channel.other { background: #3c3c3c; }
.evidence { font-family: monospace; white-space: pre-wrap; background: #1a1a1a; padding: .5em; border-radius: 3px; margin: .4em 0; }
.diff { font-family: monospace; font-size: .85em; }
.diff .add { color: #4ec94e; }
.diff .remove { color: #f14c4c; }
.diff .replace { color: #dcdcaa; }
.logs { font-family: monospace; font-size: .85em; max-height: 30em; overflow-y: auto; background: #1a1a1a; padding: 1em; border-radius: 4px; }
</style>
</head>
<body>
`

// RenderHTML produces the self-contained HTML report. Evidence keeps
// its Minecraft colors; state snapshots render as semantic diffs.
func (s *Suite) RenderHTML() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, htmlHead, html.EscapeString(s.Name))
	fmt.Fprintf(&b, "<h1>%s <span class=%q>%s</span></h1>\n",
		html.EscapeString(s.Name), cssVerdict(s.Passed), verdict(s.Passed))
	fmt.Fprintf(&b, "<p class=\"meta\">run %s, %s to %s</p>\n",
		html.EscapeString(s.ID),
		s.Started.Format(time.RFC3339), s.Ended.Format(time.RFC3339))

	for _, st := range s.Stories {
		fmt.Fprintf(&b, "<div class=\"story\">\n<h2>%s <span class=%q>%s</span></h2>\n",
			html.EscapeString(st.Name), cssVerdict(st.Passed), verdict(st.Passed))
		if st.Description != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(st.Description))
		}
		for _, step := range st.Steps {
			cls := "ok"
			if !step.Passed {
				cls = "fail"
			}
			channel := step.Channel
			if channel == "" {
				channel = ClassifyChannel(step.Action)
			}
			fmt.Fprintf(&b, "<div class=\"step %s\">\n", cls)
			fmt.Fprintf(&b, "<span class=\"channel %s\">%s</span><strong>%s</strong> <span class=\"meta\">%s · %s</span>\n",
				channel, channel,
				html.EscapeString(step.Name),
				html.EscapeString(step.Section),
				step.End.Sub(step.Start).Round(time.Millisecond))
			if step.Expected != "" {
				fmt.Fprintf(&b, "<div class=\"meta\">expected: %s</div>\n", html.EscapeString(step.Expected))
			}
			if step.Message != "" {
				fmt.Fprintf(&b, "<div>%s</div>\n", html.EscapeString(step.Message))
			}
			for _, ev := range step.Evidence {
				fmt.Fprintf(&b, "<div class=\"evidence\">%s</div>\n", ColorCodesToHTML(ev))
			}
			if step.StateBefore != "" && step.StateAfter != "" {
				writeDiff(&b, step.StateBefore, step.StateAfter)
			}
			b.WriteString("</div>\n")
		}
		b.WriteString("</div>\n")
	}

	if len(s.Logs) > 0 {
		b.WriteString("<h2>Logs</h2>\n<div class=\"logs\">\n")
		for _, l := range s.Logs {
			fmt.Fprintf(&b, "<div><span class=\"channel %s\">%s</span> %s</div>\n",
				l.Channel, l.Channel, ColorCodesToHTML(l.Text))
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

func writeDiff(b *strings.Builder, before, after string) {
	ops := DiffStates(before, after)
	if len(ops) == 0 {
		return
	}
	b.WriteString("<div class=\"diff\">\n")
	for _, op := range ops {
		switch op.Op {
		case "add":
			fmt.Fprintf(b, "<div class=\"add\">+ %s = %s</div>\n",
				html.EscapeString(op.Path), html.EscapeString(jsonCompact(op.Value)))
		case "remove":
			fmt.Fprintf(b, "<div class=\"remove\">- %s (was %s)</div>\n",
				html.EscapeString(op.Path), html.EscapeString(jsonCompact(op.From)))
		case "replace":
			fmt.Fprintf(b, "<div class=\"replace\">~ %s: %s → %s</div>\n",
				html.EscapeString(op.Path), html.EscapeString(jsonCompact(op.From)),
				html.EscapeString(jsonCompact(op.Value)))
		}
	}
	b.WriteString("</div>\n")
}

func jsonCompact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func cssVerdict(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
