package skills

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Installer copies or clones skill directories into the workspace
// skills directory.
type Installer struct {
	skillsDir string
	logger    *slog.Logger
}

// NewInstaller creates an installer rooted at the given skills directory.
func NewInstaller(skillsDir string, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{skillsDir: skillsDir, logger: logger}
}

// Install fetches a skill from a local directory or a remote git URL and
// places it under the skills directory, named after its manifest. The
// source must contain a valid skill.yaml at its root. Returns the
// installed skill's name.
func (i *Installer) Install(ctx context.Context, source string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("empty source")
	}
	if err := os.MkdirAll(i.skillsDir, 0o755); err != nil {
		return "", fmt.Errorf("create skills dir: %w", err)
	}

	srcRoot := strings.TrimPrefix(source, "file://")
	var cleanup func()
	if looksRemote(source) {
		tmp, err := os.MkdirTemp(i.skillsDir, "clone-")
		if err != nil {
			return "", fmt.Errorf("mkdirtemp: %w", err)
		}
		cleanup = func() { _ = os.RemoveAll(tmp) }
		defer cleanup()
		if err := gitClone(ctx, tmp, source); err != nil {
			return "", err
		}
		srcRoot = tmp
	} else {
		abs, err := filepath.Abs(srcRoot)
		if err != nil {
			return "", fmt.Errorf("resolve source path: %w", err)
		}
		if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
			return "", fmt.Errorf("source is not a directory: %s", source)
		}
		srcRoot = abs
	}

	data, err := os.ReadFile(filepath.Join(srcRoot, ManifestName))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", ManifestName, err)
	}
	skill, err := ParseManifest(data)
	if err != nil {
		return "", err
	}

	_, destDir, err := resolveSkillDir(i.skillsDir, skill.Name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(destDir); err == nil {
		return "", fmt.Errorf("skill already installed: %s", skill.Name)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat install dir: %w", err)
	}

	// Stage into a sibling temp dir, then rename into place so a partial
	// copy never appears as an installed skill.
	staged, err := os.MkdirTemp(i.skillsDir, "staged-")
	if err != nil {
		return "", fmt.Errorf("mkdirtemp staged: %w", err)
	}
	defer func() { _ = os.RemoveAll(staged) }()

	stagedDest := filepath.Join(staged, "skill")
	if err := copyTreeExcludingGit(srcRoot, stagedDest); err != nil {
		return "", err
	}
	if err := os.Rename(stagedDest, destDir); err != nil {
		return "", fmt.Errorf("move staged install: %w", err)
	}

	i.logger.Info("skill installed", "name", skill.Name, "dir", destDir, "source", source)
	return skill.Name, nil
}

// Remove deletes an installed skill directory by name.
func (i *Installer) Remove(name string) error {
	safeName, destDir, err := resolveSkillDir(i.skillsDir, name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(destDir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("skill not installed: %s", safeName)
		}
		return fmt.Errorf("stat install dir: %w", err)
	}
	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("remove install dir: %w", err)
	}
	i.logger.Info("skill removed", "name", safeName, "dir", destDir)
	return nil
}

// resolveSkillDir maps a logical skill name to its directory under root.
// Names are identifiers, not paths; anything that could escape the
// skills directory is rejected.
func resolveSkillDir(root, name string) (string, string, error) {
	safeName := strings.TrimSpace(name)
	if safeName == "" {
		return "", "", fmt.Errorf("empty skill name")
	}
	if safeName == "." || safeName == ".." ||
		strings.Contains(safeName, "/") || strings.Contains(safeName, "\\") {
		return "", "", fmt.Errorf("invalid skill name: %q", name)
	}
	destDir := filepath.Join(root, safeName)
	rel, err := filepath.Rel(root, destDir)
	if err != nil {
		return "", "", fmt.Errorf("resolve skill dir: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("invalid skill name: %q", name)
	}
	return safeName, destDir, nil
}

func looksRemote(source string) bool {
	source = strings.TrimSpace(strings.ToLower(source))
	return strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "ssh://") || strings.HasPrefix(source, "git@")
}

func gitClone(ctx context.Context, dstDir, srcURL string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git not found in PATH")
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", srcURL, dstDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func copyTreeExcludingGit(srcRoot, dstRoot string) error {
	if err := os.MkdirAll(dstRoot, 0o755); err != nil {
		return fmt.Errorf("mkdir dst: %w", err)
	}
	return filepath.WalkDir(srcRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		// Drop VCS metadata from installs (.git can be a file in worktrees).
		base := filepath.Base(rel)
		if base == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dst := filepath.Join(dstRoot, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// Fail closed: do not copy symlinks from external sources.
			return fmt.Errorf("symlink not allowed in install: %s", rel)
		}
		srcFile, err := os.Open(path)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		mode := info.Mode() & 0o777
		if mode == 0 {
			mode = 0o644
		}
		dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return err
		}
		defer dstFile.Close()
		_, err = io.Copy(dstFile, srcFile)
		return err
	})
}
