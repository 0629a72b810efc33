package main

import (
	"flag"
	"os"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name: "valid config",
			cfg: Config{
				DataFilepath:   "/tmp/replay.json",
				ExportDir:      "/tmp/exports",
				TickWindowDays: 1,
				BarWindowDays:  30,
			},
			wantErr: nil,
		},
		{
			name: "missing data filepath",
			cfg: Config{
				ExportDir:      "/tmp/exports",
				TickWindowDays: 1,
				BarWindowDays:  30,
			},
			wantErr: []string{"data filepath cannot be an empty string"},
		},
		{
			name: "missing export directory",
			cfg: Config{
				DataFilepath:   "/tmp/replay.json",
				TickWindowDays: 1,
				BarWindowDays:  30,
			},
			wantErr: []string{"export directory cannot be an empty string"},
		},
		{
			name: "missing collection windows",
			cfg: Config{
				DataFilepath: "/tmp/replay.json",
				ExportDir:    "/tmp/exports",
			},
			wantErr: []string{
				"tick window days must be positive",
				"bar window days must be positive",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("expected error(s) %v, got none", tt.wantErr)
					return
				}
				for _, want := range tt.wantErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			}
		})
	}
}

func TestRegisterFlagUnsupportedType(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	// Ensure field types without a flag registration path are rejected.
	var cfg Config
	var unsupported []string
	err := cfg.registerFlag("markets", &unsupported, "unsupported slice field")
	if err == nil {
		t.Fatal("expected error for unsupported field type, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported type") {
		t.Errorf("expected error to contain %q, got %v", "unsupported type", err)
	}

	err = cfg.registerFlag("ratio", new(float64), "unsupported float field")
	if err == nil {
		t.Fatal("expected error for unsupported field type, got nil")
	}
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args and environment
	origArgs := os.Args
	origEnv := os.Environ()
	defer func() {
		os.Args = origArgs
		for _, kv := range origEnv {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				os.Setenv(parts[0], parts[1])
			}
		}
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		expectCfg   Config
	}{
		{
			name: "all from env",
			env: map[string]string{
				"datafilepath":   "/tmp/replay.json",
				"exportdir":      "/tmp/exports",
				"tickwindowdays": "1",
				"barwindowdays":  "30",
			},
			args:      []string{"cmd"},
			expectErr: false,
			expectCfg: Config{
				DataFilepath:   "/tmp/replay.json",
				ExportDir:      "/tmp/exports",
				TickWindowDays: 1,
				BarWindowDays:  30,
			},
		},
		{
			name:      "all from flags",
			env:       map[string]string{},
			args:      []string{"cmd", "-datafilepath=/tmp/replay.json", "-exportdir=/tmp/exports", "-tickwindowdays=2", "-barwindowdays=60", "-runonce=true"},
			expectErr: false,
			expectCfg: Config{
				DataFilepath:   "/tmp/replay.json",
				ExportDir:      "/tmp/exports",
				TickWindowDays: 2,
				BarWindowDays:  60,
				RunOnce:        true,
			},
		},
		{
			name:      "missing required fields",
			env:       map[string]string{},
			args:      []string{"cmd"},
			expectErr: true,
			expectInErr: []string{
				"data filepath cannot be an empty string",
				"export directory cannot be an empty string",
			},
		},
		{
			name: "flags override env",
			env: map[string]string{
				"datafilepath":   "/tmp/replay.json",
				"exportdir":      "/tmp/exports",
				"tickwindowdays": "1",
				"barwindowdays":  "30",
			},
			args:      []string{"cmd", "-tickwindowdays=5"},
			expectErr: false,
			expectCfg: Config{
				DataFilepath:   "/tmp/replay.json",
				ExportDir:      "/tmp/exports",
				TickWindowDays: 5,
				BarWindowDays:  30,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			// Set environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Set command-line arguments
			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "") // don't load .env file

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			} else {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if cfg.DataFilepath != tt.expectCfg.DataFilepath {
					t.Errorf("DataFilepath: got %v, want %v", cfg.DataFilepath, tt.expectCfg.DataFilepath)
				}
				if cfg.ExportDir != tt.expectCfg.ExportDir {
					t.Errorf("ExportDir: got %v, want %v", cfg.ExportDir, tt.expectCfg.ExportDir)
				}
				if cfg.TickWindowDays != tt.expectCfg.TickWindowDays {
					t.Errorf("TickWindowDays: got %v, want %v", cfg.TickWindowDays, tt.expectCfg.TickWindowDays)
				}
				if cfg.BarWindowDays != tt.expectCfg.BarWindowDays {
					t.Errorf("BarWindowDays: got %v, want %v", cfg.BarWindowDays, tt.expectCfg.BarWindowDays)
				}
				if cfg.RunOnce != tt.expectCfg.RunOnce {
					t.Errorf("RunOnce: got %v, want %v", cfg.RunOnce, tt.expectCfg.RunOnce)
				}
			}

			// Clean up env
			for k := range tt.env {
				os.Unsetenv(k)
			}
		})
	}
}
