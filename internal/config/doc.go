// Package config manages the jitstub user configuration file.
//
// The file holds the stub address, loop tuning, monitor settings and named
// target profiles. It lives in the platform configuration directory:
//   - Linux: $XDG_CONFIG_HOME/jitstub/config.yaml or $HOME/.config/jitstub/config.yaml
//   - macOS: $HOME/.config/jitstub/config.yaml
//   - Windows: %LOCALAPPDATA%\jitstub\config.yaml
//
// A missing file is not an error; Load returns Default(). Keys left out of
// the file keep their default values.
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.SetProfile("emu", &config.Profile{PID: 812})
//	if err := cfg.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// Saves are validated first and written through a temporary file plus
// rename, under a package mutex.
package config
