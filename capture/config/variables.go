/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"
)

// Config map Keys.
const (
	KeyAutofocusOnce  = "AutofocusOnce"
	KeyCheckpointPath = "CheckpointPath"
	KeyDuration       = "Duration"
	KeyIdleSleep      = "IdleSleep"
	KeyInput          = "Input"
	KeyInputPath      = "InputPath"
	KeyJPEGQuality    = "JPEGQuality"
	KeyLeapDay        = "LeapDay"
	KeyLeapHour       = "LeapHour"
	KeyLeapMinute     = "LeapMinute"
	KeyLogging        = "logging"
	KeyLoop           = "Loop"
	KeyOutputDir      = "OutputDir"
	KeyOverwriteSaved = "OverwriteSaved"
	KeyPeriod         = "Period"
	KeyQueueCapacity  = "QueueCapacity"
	KeyQueueMode      = "QueueMode"
	KeyResolution     = "Resolution"
	KeyTimezone       = "Timezone"
	KeyTrackID        = "TrackID"
	KeyWindowEnd      = "WindowEnd"
	KeyWindowStart    = "WindowStart"
)

// Config map parameter types.
const (
	typeString = "string"
	typeInt    = "int"
	typeUint   = "uint"
	typeBool   = "bool"
)

// Default variable values.
const (
	defaultVerbosity     = logging.Error
	defaultInput         = InputFile
	defaultOutputDir     = "/var/lib/tlcam"
	defaultResolution    = ResVGA
	defaultJPEGQuality   = 75
	defaultQueueMode     = QueueModeQueued
	defaultQueueCapacity = 4 << 20 // 4MiB.
	defaultIdleSleep     = 300     // Seconds.
	defaultTimezoneMin   = -12     // Hours.
	defaultTimezoneMax   = 14      // Hours.
)

// Variables describes the variables that can be used for capture pipeline
// control. These structs provide the name and type of variable, a function
// for updating this variable in a Config, and a function for validating the
// value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyAutofocusOnce,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.AutofocusOnce = parseBool(KeyAutofocusOnce, v, c) },
	},
	{
		Name:   KeyCheckpointPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.CheckpointPath = v },
	},
	{
		Name:   KeyDuration,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.Duration = parseInt(KeyDuration, v, c) },
	},
	{
		Name:   KeyIdleSleep,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.IdleSleep = parseUint(KeyIdleSleep, v, c) },
		Validate: func(c *Config) {
			if c.IdleSleep == 0 {
				c.LogInvalidField(KeyIdleSleep, defaultIdleSleep)
				c.IdleSleep = defaultIdleSleep
			}
		},
	},
	{
		Name: KeyInput,
		Type: "enum:file,manual",
		Update: func(c *Config, v string) {
			c.Input = parseEnum(
				KeyInput,
				v,
				map[string]uint8{
					"file":   InputFile,
					"manual": InputManual,
				},
				c,
			)
		},
		Validate: func(c *Config) {
			switch c.Input {
			case InputFile, InputManual:
			default:
				c.LogInvalidField(KeyInput, "file")
				c.Input = defaultInput
			}
		},
	},
	{
		Name:   KeyInputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.InputPath = v },
	},
	{
		Name:   KeyJPEGQuality,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.JPEGQuality = parseInt(KeyJPEGQuality, v, c) },
		Validate: func(c *Config) {
			if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
				c.LogInvalidField(KeyJPEGQuality, defaultJPEGQuality)
				c.JPEGQuality = defaultJPEGQuality
			}
		},
	},
	{
		Name:   KeyLeapDay,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.LeapDay = parseInt(KeyLeapDay, v, c) },
		Validate: func(c *Config) {
			if c.LeapDay < Unspecified || c.LeapDay == 0 || c.LeapDay > 31 {
				c.LogInvalidField(KeyLeapDay, Unspecified)
				c.LeapDay = Unspecified
			}
		},
	},
	{
		Name:   KeyLeapHour,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.LeapHour = parseInt(KeyLeapHour, v, c) },
		Validate: func(c *Config) {
			if c.LeapHour < Unspecified || c.LeapHour > 23 {
				c.LogInvalidField(KeyLeapHour, Unspecified)
				c.LeapHour = Unspecified
			}
		},
	},
	{
		Name:   KeyLeapMinute,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.LeapMinute = parseInt(KeyLeapMinute, v, c) },
		Validate: func(c *Config) {
			if c.LeapMinute < Unspecified || c.LeapMinute > 59 {
				c.LogInvalidField(KeyLeapMinute, Unspecified)
				c.LeapMinute = Unspecified
			}
		},
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name:   KeyLoop,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Loop = parseBool(KeyLoop, v, c) },
	},
	{
		Name:   KeyOutputDir,
		Type:   typeString,
		Update: func(c *Config, v string) { c.OutputDir = v },
		Validate: func(c *Config) {
			if c.OutputDir == "" {
				c.LogInvalidField(KeyOutputDir, defaultOutputDir)
				c.OutputDir = defaultOutputDir
			}
		},
	},
	{
		Name:   KeyOverwriteSaved,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.OverwriteSaved = parseBool(KeyOverwriteSaved, v, c) },
	},
	{
		Name:   KeyPeriod,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Period = parseUint(KeyPeriod, v, c) },
	},
	{
		Name:   KeyQueueCapacity,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.QueueCapacity = parseUint(KeyQueueCapacity, v, c) },
		Validate: func(c *Config) {
			if c.QueueCapacity == 0 {
				c.LogInvalidField(KeyQueueCapacity, defaultQueueCapacity)
				c.QueueCapacity = defaultQueueCapacity
			}
		},
	},
	{
		Name: KeyQueueMode,
		Type: "enum:queued,direct",
		Update: func(c *Config, v string) {
			c.QueueMode = parseEnum(
				KeyQueueMode,
				v,
				map[string]uint8{
					"queued": QueueModeQueued,
					"direct": QueueModeDirect,
				},
				c,
			)
		},
		Validate: func(c *Config) {
			switch c.QueueMode {
			case QueueModeQueued, QueueModeDirect:
			default:
				c.LogInvalidField(KeyQueueMode, "queued")
				c.QueueMode = defaultQueueMode
			}
		},
	},
	{
		Name: KeyResolution,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.Resolution = Resolution(parseUint(KeyResolution, v, c))
		},
		Validate: func(c *Config) {
			if !c.Resolution.Valid() {
				c.LogInvalidField(KeyResolution, uint8(defaultResolution))
				c.Resolution = defaultResolution
			}
		},
	},
	{
		Name:   KeyTimezone,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.Timezone = parseInt(KeyTimezone, v, c) },
		Validate: func(c *Config) {
			if c.Timezone < defaultTimezoneMin || c.Timezone > defaultTimezoneMax {
				c.LogInvalidField(KeyTimezone, 0)
				c.Timezone = 0
			}
		},
	},
	{
		Name:   KeyTrackID,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TrackID = parseUint(KeyTrackID, v, c) },
	},
	{
		Name: KeyWindowEnd,
		Type: typeInt,
		Update: func(c *Config, v string) {
			_v, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.Logger.Warning("invalid WindowEnd param", "value", v)
			}
			c.WindowEnd = _v
		},
	},
	{
		Name: KeyWindowStart,
		Type: typeInt,
		Update: func(c *Config, v string) {
			_v, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.Logger.Warning("invalid WindowStart param", "value", v)
			}
			c.WindowStart = _v
		},
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

func parseInt(n, v string, c *Config) int {
	_v, err := strconv.Atoi(v)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected integer for param %s", n), "value", v)
	}
	return _v
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

func parseEnum(n, v string, enums map[string]uint8, c *Config) uint8 {
	_v, ok := enums[strings.ToLower(v)]
	if !ok {
		c.Logger.Warning(fmt.Sprintf("invalid value for %s param", n), "value", v)
	}
	return _v
}
