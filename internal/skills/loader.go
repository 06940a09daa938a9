package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Loader reads skill manifests from the workspace skills directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader rooted at the given skills directory.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, logger: logger}
}

// Dir returns the skills directory the loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

// List loads every valid skill, sorted by directory name. Directories
// without a manifest are skipped silently; invalid manifests are logged
// and skipped so one broken skill does not hide the rest.
func (l *Loader) List() ([]Skill, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var skills []Skill
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		skill, err := l.Load(ent.Name())
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			l.logger.Warn("skills: skipping invalid skill", "dir", ent.Name(), "error", err)
			continue
		}
		skills = append(skills, skill)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Dir < skills[j].Dir })
	return skills, nil
}

// Load reads and validates one skill by directory name.
func (l *Loader) Load(dirName string) (Skill, error) {
	safeName, dir, err := resolveSkillDir(l.dir, dirName)
	if err != nil {
		return Skill{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return Skill{}, err
	}
	skill, err := ParseManifest(data)
	if err != nil {
		return Skill{}, err
	}
	skill.Dir = safeName
	return skill, nil
}

// Tools returns the tool list for one skill, looked up by manifest name
// first and directory name as a fallback.
func (l *Loader) Tools(name string) ([]Tool, error) {
	skills, err := l.List()
	if err != nil {
		return nil, err
	}
	for _, s := range skills {
		if s.Name == name || s.Dir == name {
			return s.Tools, nil
		}
	}
	return nil, fmt.Errorf("skill not found: %s", name)
}
