// Package apptype detects the application kind and package manager of a source tree.
package apptype

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Perkybeet/wasm/internal/domain/model"
)

type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p packageJSON) has(dep string) bool {
	if _, ok := p.Dependencies[dep]; ok {
		return true
	}
	_, ok := p.DevDependencies[dep]
	return ok
}

// Detect inspects root and returns the app type. Order matters: a Next.js app is also a Node app.
func Detect(root string) (model.AppType, error) {
	pkg, hasPkg, err := readPackageJSON(root)
	if err != nil {
		return "", err
	}

	switch {
	case hasPkg && (pkg.has("next") || exists(root, "next.config.js") || exists(root, "next.config.mjs") || exists(root, "next.config.ts")):
		return model.AppTypeNextJS, nil
	case hasPkg && (pkg.has("vite") || globExists(root, "vite.config.*")):
		return model.AppTypeVite, nil
	case hasPkg:
		return model.AppTypeNodeJS, nil
	case exists(root, "requirements.txt") || exists(root, "pyproject.toml"):
		return model.AppTypePython, nil
	case exists(root, "index.html"):
		return model.AppTypeStatic, nil
	}
	return "", fmt.Errorf("cannot detect application type in %s", root)
}

// HasScript reports whether package.json in root declares the named script.
func HasScript(root, name string) bool {
	pkg, ok, err := readPackageJSON(root)
	if err != nil || !ok {
		return false
	}
	_, found := pkg.Scripts[name]
	return found
}

// PackageManager picks the Node package manager from lock files, defaulting to npm.
func PackageManager(root string) string {
	switch {
	case exists(root, "pnpm-lock.yaml"):
		return "pnpm"
	case exists(root, "bun.lockb") || exists(root, "bun.lock"):
		return "bun"
	case exists(root, "yarn.lock"):
		return "yarn"
	default:
		return "npm"
	}
}

func readPackageJSON(root string) (packageJSON, bool, error) {
	var pkg packageJSON
	raw, err := os.ReadFile(filepath.Join(root, "package.json"))
	if errors.Is(err, os.ErrNotExist) {
		return pkg, false, nil
	}
	if err != nil {
		return pkg, false, fmt.Errorf("read package.json: %w", err)
	}
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return pkg, false, fmt.Errorf("parse package.json: %w", err)
	}
	return pkg, true, nil
}

func exists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}

func globExists(root, pattern string) bool {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	return err == nil && len(matches) > 0
}
