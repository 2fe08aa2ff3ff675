// Package report renders a run's timing aggregate for people (styled
// text) and for scripts (YAML).
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/chronoline/cadence/internal/history"
	"github.com/chronoline/cadence/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sectionStyle = lipgloss.NewStyle().Bold(true)
)

// WriteText renders the human-readable report. prior may be nil; when
// present it is shown as a comparison section after the totals.
func WriteText(w io.Writer, run *model.RunTiming, prior []history.RunRecord) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Timing for %s run %s", run.Repo, run.RunID)))
	fmt.Fprintln(w, subtleStyle.Render(fmt.Sprintf("%d log file(s)", run.Files)))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Number of repos:"), run.Items)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Total job time:"), seconds(run.Job))
	fmt.Fprintf(w, "%s %s (%s per repo)\n",
		labelStyle.Render("Setup time:"), seconds(run.Setup), seconds(perItem(run.Setup, run.Items)))
	fmt.Fprintf(w, "%s %s (%s per repo)\n",
		labelStyle.Render("Repo time:"), seconds(run.ItemTime), seconds(perItem(run.ItemTime, run.Items)))
	fmt.Fprintf(w, "    %s %s (%s per repo, %s of repo time)\n",
		labelStyle.Render("Download time:"), seconds(run.Download),
		seconds(perItem(run.Download, run.Items)), percent(run.Download, run.ItemTime))

	for _, kind := range sortedKinds(run.Commands) {
		d := run.Commands[kind]
		fmt.Fprintf(w, "    %s %s (%s per repo, %s of repo time)\n",
			labelStyle.Render(string(kind)+":"), seconds(d),
			seconds(perItem(d, run.Items)), percent(d, run.ItemTime))
	}

	if len(prior) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render(fmt.Sprintf("Previous runs for %s", run.Repo)))
		for _, rec := range prior {
			fmt.Fprintf(w, "    run %s: %d repos, job %s, %s per repo %s\n",
				rec.RunID, rec.Items, seconds(rec.Job),
				seconds(perItem(rec.ItemTime, rec.Items)),
				subtleStyle.Render("("+rec.RecordedAt.Format("2006-01-02")+")"))
		}
	}
}

// yamlReport is the stable machine-readable shape; all times in seconds.
type yamlReport struct {
	Repo            string             `yaml:"repo"`
	RunID           string             `yaml:"run_id"`
	Files           int                `yaml:"files"`
	Repos           int                `yaml:"repos"`
	JobSeconds      float64            `yaml:"job_seconds"`
	SetupSeconds    float64            `yaml:"setup_seconds"`
	RepoSeconds     float64            `yaml:"repo_seconds"`
	DownloadSeconds float64            `yaml:"download_seconds"`
	CommandSeconds  map[string]float64 `yaml:"command_seconds,omitempty"`
	Items           []yamlItem         `yaml:"items,omitempty"`
}

type yamlItem struct {
	Name    string  `yaml:"name"`
	Seconds float64 `yaml:"seconds"`
}

// WriteYAML emits the full aggregate as YAML.
func WriteYAML(w io.Writer, run *model.RunTiming) error {
	out := yamlReport{
		Repo:            run.Repo,
		RunID:           run.RunID,
		Files:           run.Files,
		Repos:           run.Items,
		JobSeconds:      run.Job.Seconds(),
		SetupSeconds:    run.Setup.Seconds(),
		RepoSeconds:     run.ItemTime.Seconds(),
		DownloadSeconds: run.Download.Seconds(),
	}
	if len(run.Commands) > 0 {
		out.CommandSeconds = make(map[string]float64, len(run.Commands))
		for kind, d := range run.Commands {
			out.CommandSeconds[string(kind)] = d.Seconds()
		}
	}
	for _, it := range run.PerItem {
		out.Items = append(out.Items, yamlItem{Name: it.Name, Seconds: it.Elapsed.Seconds()})
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(out)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func perItem(d time.Duration, items int) time.Duration {
	if items == 0 {
		return 0
	}
	return d / time.Duration(items)
}

func percent(part, whole time.Duration) string {
	if whole <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*part.Seconds()/whole.Seconds())
}

// sortedKinds orders command kinds by descending time, ties by name.
func sortedKinds(commands map[model.CommandKind]time.Duration) []model.CommandKind {
	kinds := make([]model.CommandKind, 0, len(commands))
	for k := range commands {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if commands[kinds[i]] != commands[kinds[j]] {
			return commands[kinds[i]] > commands[kinds[j]]
		}
		return strings.Compare(string(kinds[i]), string(kinds[j])) < 0
	})
	return kinds
}
