package cli

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rescale/rescale-foldernav/internal/config"
	"github.com/rescale/rescale-foldernav/internal/constants"
)

// resetGlobals restores the package-level flag variables after a test.
func resetGlobals(t *testing.T) {
	t.Helper()
	saved := struct {
		cfgFile, apiKey, apiBaseURL, backend string
		verbose, debug                       bool
	}{cfgFile, apiKey, apiBaseURL, backend, verbose, debug}
	t.Cleanup(func() {
		cfgFile, apiKey, apiBaseURL, backend = saved.cfgFile, saved.apiKey, saved.apiBaseURL, saved.backend
		verbose, debug = saved.verbose, saved.debug
	})
}

func writeINI(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foldernav.ini")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// runRoot executes the full command tree with args.
func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetGlobals(t)
	root := NewRootCmd()
	AddCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommandStructure(t *testing.T) {
	cmd := newConfigCmd()
	want := map[string]bool{"init": false, "show": false, "test": false, "path": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
		if sub.Short == "" {
			t.Errorf("%s: Short description is empty", sub.Name())
		}
		if sub.RunE == nil {
			t.Errorf("%s: RunE function is nil", sub.Name())
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("config %s not registered", name)
		}
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	resetGlobals(t)
	cfgFile = writeINI(t, `
[service]
backend = http
api_url = http://from-file:1
api_key = file-key

[navigation]
fetch_concurrency = 7
`)
	apiKey, apiBaseURL, backend = "", "", ""
	verbose, debug = false, false

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBaseURL != "http://from-file:1" || cfg.APIKey != "file-key" {
		t.Errorf("file values not loaded: %s %s", cfg.APIBaseURL, cfg.APIKey)
	}
	if cfg.Navigation.FetchConcurrency != 7 {
		t.Errorf("fetch_concurrency = %d, want 7", cfg.Navigation.FetchConcurrency)
	}

	t.Setenv(constants.EnvAPIURL, "http://from-env:2")
	cfg, err = loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBaseURL != "http://from-env:2" {
		t.Errorf("env should override file, got %s", cfg.APIBaseURL)
	}

	apiBaseURL = "http://from-flag:3"
	backend = " Memory "
	cfg, err = loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBaseURL != "http://from-flag:3" {
		t.Errorf("flag should override env, got %s", cfg.APIBaseURL)
	}
	if cfg.Backend != config.BackendMemory {
		t.Errorf("backend = %q, want memory", cfg.Backend)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	path := writeINI(t, `
[service]
api_url = http://localhost:9999
api_key = supersecretkey

[server]
api_key = serverkey123
`)
	out, err := runRoot(t, "", "--config", path, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "supersecretkey") || strings.Contains(out, "serverkey123") {
		t.Errorf("secret printed in clear:\n%s", out)
	}
	for _, want := range []string{"supe********", "http://localhost:9999", "Configuration file: " + path} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestConfigPathReportsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.ini")
	out, err := runRoot(t, "", "--config", path, "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, path) || !strings.Contains(out, "File does not exist") {
		t.Errorf("config path = %q", out)
	}
}

func TestConfigInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foldernav.ini")
	// backend, history limit, concurrency, timeout, no proxy
	input := "memory\n50\n8\n\nn\n"
	out, err := runRoot(t, input, "--config", path, "config", "init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Configuration saved to: "+path) {
		t.Errorf("config init = %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != config.BackendMemory || cfg.Navigation.HistoryLimit != 50 || cfg.Navigation.FetchConcurrency != 8 {
		t.Errorf("saved config = %+v", cfg.Navigation)
	}

	out, err = runRoot(t, "", "--config", path, "config", "init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("init without --force should not overwrite: %q", out)
	}
}

func TestConfigWizardRejectsUnknownBackend(t *testing.T) {
	var out bytes.Buffer
	_, err := runConfigWizard(bufio.NewReader(strings.NewReader("ftp\n")), &out)
	if err != config.ErrUnknownBackend {
		t.Errorf("got %v, want ErrUnknownBackend", err)
	}
}

func TestConfigTestMemoryBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.ini")
	out, err := runRoot(t, "", "--config", path, "--backend", "memory", "config", "test")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Connection SUCCESSFUL") || !strings.Contains(out, "2 entries") {
		t.Errorf("config test = %q", out)
	}
}

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\ny\n", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := promptConfirm(strings.NewReader(tt.input), &out, "Delete?")
		if err != nil {
			t.Errorf("%q: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.input, got, tt.want)
		}
	}
}
