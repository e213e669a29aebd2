package cellparams

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadOCPPoints reads a two-column (stoichiometry, potential) text file.
// Lines starting with '#' and blank lines are skipped; columns may be
// separated by whitespace or a comma.
func LoadOCPPoints(path string) (theta, potential []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.ReplaceAll(line, ",", " ")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("%s:%d: expected two columns, have %q", path, lineNo, line)
		}
		th, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %v", path, lineNo, err)
		}
		u, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %v", path, lineNo, err)
		}
		theta = append(theta, th)
		potential = append(potential, u)
	}
	if err = scanner.Err(); err != nil {
		return nil, nil, err
	}
	return theta, potential, nil
}

// ResolveOCPSources loads every OCP referenced by file into inline control
// points. Relative source paths are resolved against dir. Inline points
// already present win over the file reference.
func (cfg *CellConfiguration) ResolveOCPSources(dir string) error {
	for _, r := range []*RegionSpec{&cfg.Anode, &cfg.Cathode} {
		for i := range r.Materials {
			ocp := &r.Materials[i].OCP
			if ocp.Source == "" || len(ocp.Stoichiometry) != 0 {
				continue
			}
			path := ocp.Source
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			theta, pot, err := LoadOCPPoints(path)
			if err != nil {
				return fmt.Errorf("loading OCP source %q: %w", ocp.Source, err)
			}
			ocp.Stoichiometry, ocp.Potential = theta, pot
		}
	}
	return cfg.Validate()
}
