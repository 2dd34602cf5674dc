package model

import (
	"fmt"
	"strings"
)

// AppType is the kind of application being deployed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type AppType string

const (
	AppTypeNextJS AppType = "nextjs"
	AppTypeNodeJS AppType = "nodejs"
	AppTypeVite   AppType = "vite"
	AppTypePython AppType = "python"
	AppTypeStatic AppType = "static"
)

// PackageManagerPlaceholder is replaced by the detected package manager (npm, pnpm, yarn, bun).
const PackageManagerPlaceholder = "{pm}"

// Command is one argv to run inside the application root.
type Command []string

// Capabilities describes how an app type is installed, built, started and probed.
type Capabilities struct {
	Install         []Command
	Build           []Command
	Start           Command
	HealthCheckPath string
	// NeedsService is false for apps served straight from disk by the proxy.
	NeedsService bool
	// ServeDir is the directory the proxy serves for apps without a service.
	ServeDir string
	// DependencyDirs and BuildOutputs are excluded from default backups.
	DependencyDirs []string
	BuildOutputs   []string
}

var capabilityTable = map[AppType]Capabilities{
	AppTypeNextJS: {
		Install:         []Command{{PackageManagerPlaceholder, "install"}},
		Build:           []Command{{PackageManagerPlaceholder, "run", "build"}},
		Start:           Command{PackageManagerPlaceholder, "run", "start"},
		HealthCheckPath: "/",
		NeedsService:    true,
		DependencyDirs:  []string{"node_modules"},
		BuildOutputs:    []string{".next"},
	},
	AppTypeNodeJS: {
		Install:         []Command{{PackageManagerPlaceholder, "install"}},
		Start:           Command{PackageManagerPlaceholder, "start"},
		HealthCheckPath: "/",
		NeedsService:    true,
		DependencyDirs:  []string{"node_modules"},
		BuildOutputs:    []string{"dist", "build"},
	},
	AppTypeVite: {
		Install:         []Command{{PackageManagerPlaceholder, "install"}},
		Build:           []Command{{PackageManagerPlaceholder, "run", "build"}},
		HealthCheckPath: "/",
		ServeDir:        "dist",
		DependencyDirs:  []string{"node_modules"},
		BuildOutputs:    []string{"dist"},
	},
	AppTypePython: {
		Install: []Command{
			{"python3", "-m", "venv", ".venv"},
			{".venv/bin/pip", "install", "-r", "requirements.txt"},
		},
		Start:           Command{".venv/bin/gunicorn", "--bind", "127.0.0.1:${PORT}", "app:app"},
		HealthCheckPath: "/",
		NeedsService:    true,
		DependencyDirs:  []string{".venv"},
		BuildOutputs:    []string{"__pycache__"},
	},
	AppTypeStatic: {
		HealthCheckPath: "/",
		ServeDir:        ".",
	},
}

// UnmarshalText implements encoding.TextUnmarshaler for AppType.
func (t *AppType) UnmarshalText(text []byte) error {
	v := AppType(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*t = ""
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid app type: %q", v)
	}
	*t = v
	return nil
}

// Valid reports whether t is a supported app type.
func (t AppType) Valid() bool {
	_, ok := capabilityTable[t]
	return ok
}

// CapabilitiesFor returns the capability row for t. Unknown types get the static row.
func CapabilitiesFor(t AppType) Capabilities {
	if c, ok := capabilityTable[t]; ok {
		return c
	}
	return capabilityTable[AppTypeStatic]
}

// Resolve substitutes the package manager placeholder.
func (c Command) Resolve(pm string) Command {
	out := make(Command, len(c))
	for i, arg := range c {
		if arg == PackageManagerPlaceholder {
			arg = pm
		}
		out[i] = arg
	}
	return out
}
