/*
DESCRIPTION
  nvs.go provides persistence of the control settings as a TOML document of
  string values, read once at boot and rewritten on change.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package nvs provides non-volatile settings storage for the capture control
// loop; a single TOML document of string valued variables, suitable for
// feeding to config.Update. A missing or unparseable document falls back to
// provided defaults rather than failing boot.
package nvs

import (
	"fmt"
	"os"

	"github.com/ausocean/utils/logging"
	"github.com/pelletier/go-toml/v2"
)

// Settings persists string settings at a file path.
type Settings struct {
	path string
	log  logging.Logger
}

// NewSettings returns a Settings persisting at path.
func NewSettings(path string, l logging.Logger) *Settings {
	return &Settings{path: path, log: l}
}

// Path returns the location of the settings document.
func (s *Settings) Path() string { return s.path }

// Load reads the settings document and returns defaults overlaid with its
// values. A missing or unparseable document yields the defaults unchanged;
// settings must never prevent boot.
func (s *Settings) Load(defaults map[string]string) map[string]string {
	vars := make(map[string]string, len(defaults))
	for k, v := range defaults {
		vars[k] = v
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warning("could not read settings, using defaults", "path", s.path, "error", err.Error())
		return vars
	}

	var stored map[string]string
	err = toml.Unmarshal(data, &stored)
	if err != nil {
		s.log.Warning("could not parse settings, using defaults", "path", s.path, "error", err.Error())
		return vars
	}

	for k, v := range stored {
		vars[k] = v
	}
	return vars
}

// Save writes vars as the settings document. The write is atomic; the
// document is written to a temporary file and renamed into place.
func (s *Settings) Save(vars map[string]string) error {
	data, err := toml.Marshal(vars)
	if err != nil {
		return fmt.Errorf("could not encode settings: %w", err)
	}
	tmp := s.path + ".tmp"
	err = os.WriteFile(tmp, data, 0666)
	if err != nil {
		return fmt.Errorf("could not write settings temp file: %w", err)
	}
	err = os.Rename(tmp, s.path)
	if err != nil {
		return fmt.Errorf("could not rename settings into place: %w", err)
	}
	return nil
}
