package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/craftlab/lodestone/pkg/fault"
)

// manifest is the run.yaml summary written next to the reports.
type manifest struct {
	Suite    string    `yaml:"suite"`
	ID       string    `yaml:"id"`
	Passed   bool      `yaml:"passed"`
	Started  time.Time `yaml:"started"`
	Ended    time.Time `yaml:"ended"`
	Stories  int       `yaml:"stories"`
	Failed   int       `yaml:"failed"`
	Reports  []string  `yaml:"reports"`
	Warnings []string  `yaml:"warnings,omitempty"`
}

// WriteAll renders every report format into dir and writes the run.yaml
// manifest. A renderer panic marks the suite failed and is noted in the
// manifest; the JSON report is still attempted so the raw data survives.
func WriteAll(s *Suite, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Wrap(fault.Config, err, "creating report directory")
	}
	base := SanitizeName(s.Name)

	m := manifest{
		Suite:   s.Name,
		ID:      s.ID,
		Passed:  s.Passed,
		Started: s.Started,
		Ended:   s.Ended,
		Stories: len(s.Stories),
	}
	for _, st := range s.Stories {
		if !st.Passed {
			m.Failed++
		}
	}

	write := func(name string, render func() ([]byte, error)) {
		data, err := renderSafe(render)
		if err != nil {
			m.Passed = false
			m.Warnings = append(m.Warnings, fmt.Sprintf("%s: %v", name, err))
			return
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			m.Warnings = append(m.Warnings, fmt.Sprintf("%s: %v", name, err))
			return
		}
		m.Reports = append(m.Reports, name)
	}

	write(base+"_report.txt", func() ([]byte, error) { return s.RenderText(), nil })
	write(base+"_report.json", s.RenderJSON)
	write("TEST-"+base+".xml", s.RenderJUnit)
	write(base+"_report.html", func() ([]byte, error) { return s.RenderHTML(), nil })

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fault.Wrap(fault.Config, err, "encoding run manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, "run.yaml"), data, 0o644); err != nil {
		return fault.Wrap(fault.Config, err, "writing run manifest")
	}
	return nil
}

// renderSafe converts a renderer panic into an error so one bad format
// cannot take the others down.
func renderSafe(render func() ([]byte, error)) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return render()
}
