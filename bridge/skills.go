package bridge

import (
	"context"

	"github.com/basket/pocketclaw/internal/skills"
)

// Skill summarizes one installed skill.
type Skill struct {
	Name        string
	Description string
	Version     string
	Author      *string
	Tags        []string
	ToolCount   uint32
	ToolNames   []string
}

// SkillTool is one tool a skill provides. Kind is "shell", "http", or
// "script"; Command is the command line, URL, or script path.
type SkillTool struct {
	Name        string
	Description string
	Kind        string
	Command     string
}

func toSkill(s skills.Skill) Skill {
	out := Skill{
		Name:        s.Name,
		Description: s.Description,
		Version:     s.Version,
		Tags:        s.Tags,
		ToolCount:   uint32(len(s.Tools)),
		ToolNames:   s.ToolNames(),
	}
	if s.Author != "" {
		author := s.Author
		out.Author = &author
	}
	return out
}

// ListSkills returns every skill installed in the running workspace.
// Directories with missing or invalid manifests are skipped.
func ListSkills() ([]Skill, error) {
	return guardErr(func() ([]Skill, error) {
		loader, _, err := rt().Skills()
		if err != nil {
			return nil, err
		}
		list, err := loader.List()
		if err != nil {
			return nil, err
		}
		out := make([]Skill, 0, len(list))
		for _, s := range list {
			out = append(out, toSkill(s))
		}
		return out, nil
	})
}

// GetSkillTools returns the tools a named skill provides.
func GetSkillTools(skillName string) ([]SkillTool, error) {
	return guardErr(func() ([]SkillTool, error) {
		loader, _, err := rt().Skills()
		if err != nil {
			return nil, err
		}
		tools, err := loader.Tools(skillName)
		if err != nil {
			return nil, err
		}
		out := make([]SkillTool, 0, len(tools))
		for _, t := range tools {
			out = append(out, SkillTool{
				Name:        t.Name,
				Description: t.Description,
				Kind:        t.Kind,
				Command:     t.Command,
			})
		}
		return out, nil
	})
}

// InstallSkill installs a skill from a git URL or local directory into
// the running workspace and returns the installed skill's name.
func InstallSkill(source string) (string, error) {
	return guardErr(func() (string, error) {
		_, installer, err := rt().Skills()
		if err != nil {
			return "", err
		}
		return installer.Install(context.Background(), source)
	})
}

// RemoveSkill deletes an installed skill by name.
func RemoveSkill(name string) error {
	return guard(func() error {
		_, installer, err := rt().Skills()
		if err != nil {
			return err
		}
		return installer.Remove(name)
	})
}
