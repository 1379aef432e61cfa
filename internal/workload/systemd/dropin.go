package systemd

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/subosito/gotenv"
	"github.com/trly/nfops/internal/workload"
	"gopkg.in/ini.v1"
)

var iniOptions = ini.LoadOptions{AllowShadows: true, IgnoreInlineComment: true}

const (
	dropInName  = "50-nfops.conf"
	envFileName = "nfops.env"
)

// dropIn is the managed override of one service.
type dropIn struct {
	Description string
	Command     string
	Environment map[string]string
}

func dropInDir(unitDir, service string) string {
	return filepath.Join(unitDir, service+".service.d")
}

// render produces the drop-in unit file. ExecStart is cleared first so the
// command replaces the one in the vendor unit.
func (d dropIn) render(envFile string) ([]byte, error) {
	file := ini.Empty(iniOptions)

	unit, err := file.NewSection("Unit")
	if err != nil {
		return nil, err
	}
	if d.Description != "" {
		_, _ = unit.NewKey("Description", d.Description)
	}

	svc, err := file.NewSection("Service")
	if err != nil {
		return nil, err
	}
	if d.Command != "" {
		k, _ := svc.NewKey("ExecStart", "")
		if err := k.AddShadow(d.Command); err != nil {
			return nil, err
		}
	}
	_, _ = svc.NewKey("EnvironmentFile", envFile)

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// loadDropIn reads the managed drop-in and environment file. A missing
// drop-in yields ok=false.
func loadDropIn(unitDir, service string) (d dropIn, ok bool, err error) {
	dir := dropInDir(unitDir, service)
	content, err := os.ReadFile(filepath.Join(dir, dropInName))
	if errors.Is(err, os.ErrNotExist) {
		return dropIn{}, false, nil
	}
	if err != nil {
		return dropIn{}, false, err
	}

	file, err := ini.LoadSources(iniOptions, content)
	if err != nil {
		return dropIn{}, false, fmt.Errorf("failed to parse drop-in for %s: %w", service, err)
	}
	d.Description = file.Section("Unit").Key("Description").String()
	if shadows := file.Section("Service").Key("ExecStart").ValueWithShadows(); len(shadows) > 0 {
		d.Command = shadows[len(shadows)-1]
	}

	envContent, err := os.ReadFile(filepath.Join(dir, envFileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.Environment = map[string]string{}
	case err != nil:
		return dropIn{}, false, err
	default:
		env, err := gotenv.StrictParse(bytes.NewReader(envContent))
		if err != nil {
			return dropIn{}, false, fmt.Errorf("failed to parse environment for %s: %w", service, err)
		}
		d.Environment = env
	}
	return d, true, nil
}

// merge applies spec over d following the layer override rules.
func (d dropIn) merge(override workload.Override, spec workload.ServiceSpec) dropIn {
	if override == workload.OverrideReplace {
		return dropIn{
			Description: spec.Summary,
			Command:     spec.Command,
			Environment: maps.Clone(spec.Environment),
		}
	}
	out := dropIn{
		Description: d.Description,
		Command:     d.Command,
		Environment: maps.Clone(d.Environment),
	}
	if out.Environment == nil {
		out.Environment = map[string]string{}
	}
	if spec.Summary != "" {
		out.Description = spec.Summary
	}
	if spec.Command != "" {
		out.Command = spec.Command
	}
	maps.Copy(out.Environment, spec.Environment)
	return out
}

func writeDropIn(unitDir, service string, d dropIn) error {
	dir := dropInDir(unitDir, service)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create drop-in directory: %w", err)
	}

	envContent, err := renderEnv(d.Environment)
	if err != nil {
		return fmt.Errorf("failed to render environment for %s: %w", service, err)
	}
	envPath := filepath.Join(dir, envFileName)
	if err := os.WriteFile(envPath, envContent, 0o600); err != nil {
		return fmt.Errorf("failed to write environment for %s: %w", service, err)
	}

	content, err := d.render(envPath)
	if err != nil {
		return fmt.Errorf("failed to render drop-in for %s: %w", service, err)
	}
	return os.WriteFile(filepath.Join(dir, dropInName), content, 0o644) //nolint:gosec // unit files are world-readable
}

// renderEnv renders an EnvironmentFile with every value single-quoted. Both
// systemd and gotenv read single-quoted values verbatim, so backslashes and
// dollar signs survive a merge.
func renderEnv(env map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	for _, k := range slices.Sorted(maps.Keys(env)) {
		v := env[k]
		line := fmt.Sprintf("%s='%s'\n", k, v)
		if strings.ContainsAny(v, "'\r\n") || !readsBack(line, k, v) {
			return nil, fmt.Errorf("value of %s cannot be stored in an environment file", k)
		}
		buf.WriteString(line)
	}
	return buf.Bytes(), nil
}

func readsBack(line, key, value string) bool {
	env, err := gotenv.StrictParse(strings.NewReader(line))
	return err == nil && env[key] == value
}
