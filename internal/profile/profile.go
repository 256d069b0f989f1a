// Package profile manages the user's persistent tutor profile.
// The profile is stored at ~/.config/tutor/profile.json and is created
// once via the interactive setup flow, then used to fill config gaps.
package profile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fakeyudi/tutor/internal/config"
)

// Profile holds user-level preferences set during first-run setup.
type Profile struct {
	Name      string `json:"name"`
	Voice     string `json:"voice"`
	ServerURL string `json:"server_url"`
	AutoPlay  bool   `json:"auto_play"` // play replies as soon as they arrive
}

// Defaults is the profile offered on first run.
func Defaults() Profile {
	d := config.Defaults()
	return Profile{Voice: d.Voice, ServerURL: d.ServerURL, AutoPlay: true}
}

// Config returns the profile as a config layer.
func (p *Profile) Config() *config.Config {
	if p == nil {
		return nil
	}
	return &config.Config{Voice: p.Voice, ServerURL: p.ServerURL}
}

// profilePath returns the path to the profile file.
func profilePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := profilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk. Returns an error if the file is missing or malformed.
func Load() (*Profile, error) {
	p, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("profile not found, run 'tutor setup' to configure: %w", err)
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return &prof, nil
}

// Save writes the profile to disk, creating the config directory if needed.
func Save(prof *Profile) error {
	p, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// RunSetup runs the interactive setup wizard on in/out and returns the
// resulting profile. If existing is non-nil, it is used as the default for
// each prompt (edit mode). voices, when non-empty, is listed as a hint.
func RunSetup(in io.Reader, out io.Writer, existing *Profile, voices []string) (*Profile, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		return strings.ToLower(ans) == "y" || strings.ToLower(ans) == "yes", nil
	}

	prof := Defaults()
	if existing != nil {
		prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │     tutor  first-time setup     │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	prof.Name, err = ask("  Your name", prof.Name)
	if err != nil {
		return nil, err
	}

	for {
		server, err := ask("  Tutor server URL", prof.ServerURL)
		if err != nil {
			return nil, err
		}
		if u, perr := url.Parse(server); perr == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			prof.ServerURL = strings.TrimRight(server, "/")
			break
		}
		fmt.Fprintln(out, "  Please enter an http:// or https:// URL.")
	}

	if len(voices) > 0 {
		fmt.Fprintf(out, "  Available voices: %s\n", strings.Join(voices, ", "))
	}
	prof.Voice, err = ask("  Voice", prof.Voice)
	if err != nil {
		return nil, err
	}

	prof.AutoPlay, err = askBool("  Play replies automatically", prof.AutoPlay)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	return &prof, nil
}
