package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
)

// DefaultBackupCount is the number of previous settings files kept next to the current one.
const DefaultBackupCount = 3

// WriteSettings encodes s in the format implied by path's extension and
// replaces path atomically, rotating any existing file into path.bak.
func WriteSettings(path string, s Settings) error {
	data, err := encodeSettings(path, s)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := createBackup(path, DefaultBackupCount); err != nil {
			L_warn("config: backup failed, continuing with save", "error", err)
		}
	}

	if err := AtomicWrite(path, data, 0o600); err != nil {
		return err
	}
	L_debug("config: settings written", "path", path)
	return nil
}

func encodeSettings(path string, s Settings) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	case ".toml":
		if err := toml.NewEncoder(&buf).Encode(s); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
	case ".json":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	default:
		return nil, fmt.Errorf("settings %s: unsupported format (want .yaml, .toml or .json)", path)
	}
	return buf.Bytes(), nil
}

// AtomicWrite writes data to path atomically using temp file + rename.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Same directory as the target so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".nova-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp to target: %w", err)
	}
	success = true
	return nil
}

// createBackup rotates existing backups and copies the current file to .bak
func createBackup(path string, maxBackups int) error {
	rotateBackups(path, maxBackups)

	backupPath := path + ".bak"
	if err := copyFile(path, backupPath); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	L_debug("config: created backup", "path", backupPath)
	return nil
}

// rotateBackups shifts .bak -> .bak.1 -> ... and drops the oldest.
func rotateBackups(path string, maxBackups int) {
	if maxBackups <= 1 {
		return
	}
	base := path + ".bak"
	name := func(i int) string {
		if i == 0 {
			return base
		}
		return fmt.Sprintf("%s.%d", base, i)
	}

	os.Remove(name(maxBackups - 1))
	for i := maxBackups - 2; i >= 0; i-- {
		if _, err := os.Stat(name(i)); err == nil {
			os.Rename(name(i), name(i+1))
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
