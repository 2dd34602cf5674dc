package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// Systemd manages application services as systemd units.
type Systemd struct {
	cmd     Commander
	unitDir string
	logger  *slog.Logger
}

var _ core.ServiceManager = (*Systemd)(nil)

// NewSystemd creates a Systemd manager writing units into unitDir.
func NewSystemd(cmd Commander, unitDir string, logger *slog.Logger) *Systemd {
	if logger == nil {
		logger = slog.Default()
	}
	return &Systemd{cmd: cmd, unitDir: unitDir, logger: logger.With("component", "systemd")}
}

func (s *Systemd) unitPath(name string) string {
	return filepath.Join(s.unitDir, unitName(name))
}

func unitName(name string) string {
	if strings.HasSuffix(name, ".service") {
		return name
	}
	return name + ".service"
}

func (s *Systemd) systemctl(ctx context.Context, args ...string) (model.CommandResult, error) {
	return run(ctx, s.cmd, Cmd{Name: "systemctl", Args: args})
}

// Create writes the unit file, reloads systemd and enables the unit.
func (s *Systemd) Create(ctx context.Context, unit model.UnitSpec) error {
	if unit.Name == "" {
		return apperrors.ValidationField("name", "unit name is required")
	}
	if err := os.MkdirAll(s.unitDir, 0o755); err != nil {
		return apperrors.Integration("systemd", "", fmt.Errorf("create unit dir: %w", err))
	}
	if err := writeFileAtomic(s.unitPath(unit.Name), []byte(unit.Content), 0o644); err != nil {
		return apperrors.Integration("systemd", "", err)
	}
	if _, err := s.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}
	if _, err := s.systemctl(ctx, "enable", unitName(unit.Name)); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "unit created", "unit", unitName(unit.Name))
	return nil
}

// Start starts the unit.
func (s *Systemd) Start(ctx context.Context, id string) error {
	_, err := s.systemctl(ctx, "start", unitName(id))
	return err
}

// Stop stops the unit.
func (s *Systemd) Stop(ctx context.Context, id string) error {
	_, err := s.systemctl(ctx, "stop", unitName(id))
	return err
}

// Restart restarts the unit, starting it if it was stopped.
func (s *Systemd) Restart(ctx context.Context, id string) error {
	_, err := s.systemctl(ctx, "restart", unitName(id))
	return err
}

// Status reports whether the unit is active and its main PID.
func (s *Systemd) Status(ctx context.Context, id string) (model.ServiceStatus, error) {
	res, err := s.systemctl(ctx, "show", unitName(id), "--property=ActiveState,MainPID")
	if err != nil {
		return model.ServiceStatus{}, err
	}
	return parseShow(res.Output), nil
}

func parseShow(out string) model.ServiceStatus {
	var st model.ServiceStatus
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "ActiveState":
			st.Active = value == "active"
		case "MainPID":
			st.PID, _ = strconv.Atoi(value)
		}
	}
	return st
}

// Remove stops and disables the unit and deletes its file. Missing units are not an error.
func (s *Systemd) Remove(ctx context.Context, id string) error {
	name := unitName(id)
	if _, err := s.systemctl(ctx, "disable", "--now", name); err != nil {
		s.logger.WarnContext(ctx, "disable unit", "unit", name, "error", err)
	}
	if err := os.Remove(s.unitPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Integration("systemd", "", fmt.Errorf("remove unit file: %w", err))
	}
	_, err := s.systemctl(ctx, "daemon-reload")
	return err
}

// writeFileAtomic writes data beside path and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
