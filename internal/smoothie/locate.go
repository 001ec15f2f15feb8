package smoothie

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

const presetsFileName = "encoding_presets.ini"

// FindExecutable resolves the smoothie-rs binary. Names containing a path
// separator are checked directly; bare names are looked up on PATH and
// then under <installDir>/bin.
func FindExecutable(binary, installDir string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "smoothie-rs"
	}
	if strings.ContainsRune(binary, os.PathSeparator) {
		if _, err := os.Stat(binary); err != nil {
			return "", fmt.Errorf("smoothie binary %s: %w", binary, err)
		}
		return binary, nil
	}
	if path, err := exec.LookPath(binary); err == nil {
		return path, nil
	}
	if installDir != "" {
		candidate := filepath.Join(installDir, "bin", binary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("smoothie binary %s not found on PATH or under %s", binary, filepath.Join(installDir, "bin"))
}

// InstallRootFromExecutable derives the install root from a resolved
// binary path (the binary lives in <root>/bin).
func InstallRootFromExecutable(exePath string) string {
	return filepath.Dir(filepath.Dir(exePath))
}

// DefaultRecipe returns the stock recipe.ini shipped at the install root.
func DefaultRecipe(installDir string) string {
	return filepath.Join(installDir, "recipe.ini")
}

// ListRecipes returns recipe files under the install root and its
// recipes/ subdirectory, sorted by name. The encoding presets file is
// not a recipe and is skipped.
func ListRecipes(installDir string) ([]string, error) {
	if strings.TrimSpace(installDir) == "" {
		return nil, nil
	}
	var recipes []string
	for _, dir := range []string{installDir, filepath.Join(installDir, "recipes")} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read recipe directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if !strings.EqualFold(filepath.Ext(name), ".ini") {
				continue
			}
			if strings.EqualFold(name, presetsFileName) {
				continue
			}
			recipes = append(recipes, filepath.Join(dir, name))
		}
	}
	sort.Strings(recipes)
	return recipes, nil
}
