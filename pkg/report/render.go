package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RenderText produces the plain-text report: one line per story, one
// block per step, evidence bulleted.
func (s *Suite) RenderText() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "suite %s (%s): %s\n", s.Name, s.ID, verdict(s.Passed))
	fmt.Fprintf(&b, "started %s, finished %s\n", s.Started.Format(time.RFC3339), s.Ended.Format(time.RFC3339))
	for _, st := range s.Stories {
		fmt.Fprintf(&b, "\n[%s] %s\n", verdict(st.Passed), st.Name)
		if st.Description != "" {
			fmt.Fprintf(&b, "  %s\n", st.Description)
		}
		for _, step := range st.Steps {
			mark := "ok"
			if !step.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "  %-4s %-10s %s", mark, step.Section, step.Name)
			if step.Action != step.Name {
				fmt.Fprintf(&b, " (%s)", step.Action)
			}
			fmt.Fprintf(&b, " [%s]\n", step.End.Sub(step.Start).Round(time.Millisecond))
			if step.Expected != "" {
				fmt.Fprintf(&b, "       expected: %s\n", step.Expected)
			}
			if step.Message != "" {
				fmt.Fprintf(&b, "       %s\n", step.Message)
			}
			for _, ev := range step.Evidence {
				fmt.Fprintf(&b, "       - %s\n", StripColorCodes(ev))
			}
		}
		if r := st.Result; r != nil {
			fmt.Fprintf(&b, "  %d actions, %d/%d assertions passed, %d ms\n",
				r.ActionsExecuted, r.AssertionsPassed,
				r.AssertionsPassed+r.AssertionsFailed, r.ExecutionTimeMs)
		}
	}
	return []byte(b.String())
}

// RenderJSON mirrors the aggregate verbatim.
func (s *Suite) RenderJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// --- JUnit XML ---

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// RenderJUnit produces JUnit-compatible XML: one testcase per step.
func (s *Suite) RenderJUnit() ([]byte, error) {
	root := junitSuites{Name: s.Name}
	for _, st := range s.Stories {
		js := junitSuite{
			Name: st.Name,
			Time: junitSeconds(st.Ended.Sub(st.Started)),
		}
		for _, step := range st.Steps {
			jc := junitCase{
				Name:      step.Section + " / " + step.Name,
				ClassName: s.Name + "." + st.Name,
				Time:      junitSeconds(step.End.Sub(step.Start)),
			}
			if !step.Passed {
				jc.Failure = &junitFailure{
					Message: step.Message,
					Type:    string(step.FaultKind),
					Body:    StripColorCodes(strings.Join(step.Evidence, "\n")),
				}
				js.Failures++
			}
			js.Tests++
			js.Cases = append(js.Cases, jc)
		}
		root.Tests += js.Tests
		root.Failures += js.Failures
		root.Suites = append(root.Suites, js)
	}
	data, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}

func junitSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func verdict(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "FAILED"
}

// sanitizeRe matches everything a report filename may not contain.
var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// SanitizeName maps a suite name onto the filename-safe form.
func SanitizeName(name string) string {
	return sanitizeRe.ReplaceAllString(name, "_")
}
