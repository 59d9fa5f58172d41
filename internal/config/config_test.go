package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestResolveWakeWordDefaults(t *testing.T) {
	dir := t.TempDir()

	invalid := filepath.Join(dir, "invalid.json")
	writeFile(t, invalid, `{"wakeWord": `)
	blank := filepath.Join(dir, "blank.json")
	writeFile(t, blank, `{"wakeWord": "   "}`)
	wrongType := filepath.Join(dir, "number.json")
	writeFile(t, wrongType, `{"wakeWord": 7}`)
	missingField := filepath.Join(dir, "other.json")
	writeFile(t, missingField, `{"theme": "dark"}`)
	array := filepath.Join(dir, "array.json")
	writeFile(t, array, `["jarvis"]`)

	tests := []struct {
		name string
		path string
	}{
		{"no path", ""},
		{"nonexistent file", filepath.Join(dir, "missing.json")},
		{"invalid json", invalid},
		{"whitespace wake word", blank},
		{"non-string wake word", wrongType},
		{"field absent", missingField},
		{"not an object", array},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveWakeWord(tt.path); got != DefaultWakeWord {
				t.Fatalf("ResolveWakeWord = %q, want %q", got, DefaultWakeWord)
			}
		})
	}
}

func TestResolveWakeWordNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.json")
	writeFile(t, path, `{"wakeWord": "  Nova  ", "voice": "aoede"}`)

	if got := ResolveWakeWord(path); got != "nova" {
		t.Fatalf("ResolveWakeWord = %q, want nova", got)
	}

	// Re-read on every call: a live edit is picked up immediately.
	writeFile(t, path, `{"wakeWord": "JARVIS"}`)
	if got := ResolveWakeWord(path); got != "jarvis" {
		t.Fatalf("ResolveWakeWord after edit = %q, want jarvis", got)
	}
}

func TestResolveWakeWordExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, "assistant.json"), `{"wakeWord": "Friday"}`)

	if got := ResolveWakeWord("~/assistant.json"); got != "friday" {
		t.Fatalf("ResolveWakeWord = %q, want friday", got)
	}
}

func clearSecrets(t *testing.T) {
	for _, key := range []string{"NOVA_GOOGLE_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "GROQ_API_KEY", "DEEPGRAM_API_KEY"} {
		t.Setenv(key, "")
	}
}

func TestLoadSettingsDefaultsWithoutFile(t *testing.T) {
	clearSecrets(t)
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	def := DefaultSettings()
	if s.Notify != def.Notify {
		t.Fatalf("notify settings = %+v, want %+v", s.Notify, def.Notify)
	}
	if s.WakeWord.STT.Provider != "google" || s.WakeWord.Capture.SampleRate != 48000 {
		t.Fatalf("unexpected wake word defaults: %+v", s.WakeWord)
	}
}

func TestLoadSettingsMergesFileOverDefaults(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "monitors.yaml")
	writeFile(t, yamlPath, `
notify:
  app: telegram
  interval: 2500ms
wakeword:
  stt:
    provider: groq
  recognizer:
    phraseLimit: 6s
`)
	tomlPath := filepath.Join(dir, "monitors.toml")
	writeFile(t, tomlPath, `
[notify]
app = "signal"

[wakeword.capture]
inputDevice = "alsa_input.usb"
`)
	jsonPath := filepath.Join(dir, "monitors.json")
	writeFile(t, jsonPath, `{"notify": {"maxQueued": 10}, "metrics": {"addr": ":9310"}}`)

	s, err := LoadSettings(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if s.Notify.App != "telegram" || s.Notify.Interval.Std() != 2500*time.Millisecond {
		t.Errorf("yaml notify = %+v", s.Notify)
	}
	if s.Notify.MaxQueued != 64 {
		t.Errorf("yaml should keep default maxQueued, got %d", s.Notify.MaxQueued)
	}
	if s.WakeWord.STT.Provider != "groq" || s.WakeWord.STT.Groq.Model != "whisper-large-v3-turbo" {
		t.Errorf("yaml stt = %+v", s.WakeWord.STT)
	}
	if s.WakeWord.Recognizer.PhraseLimit.Std() != 6*time.Second || s.WakeWord.Recognizer.EnergyThreshold != 300 {
		t.Errorf("yaml recognizer = %+v", s.WakeWord.Recognizer)
	}

	s, err = LoadSettings(tomlPath)
	if err != nil {
		t.Fatalf("toml: %v", err)
	}
	if s.Notify.App != "signal" || s.WakeWord.Capture.InputDevice != "alsa_input.usb" || s.WakeWord.Capture.Command != "ffmpeg" {
		t.Errorf("toml settings = %+v / %+v", s.Notify, s.WakeWord.Capture)
	}

	s, err = LoadSettings(jsonPath)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if s.Notify.MaxQueued != 10 || s.Notify.App != "whatsapp" || s.Metrics.Addr != ":9310" {
		t.Errorf("json settings = %+v / %+v", s.Notify, s.Metrics)
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "monitors.yaml")
	writeFile(t, bad, "notify:\n  interval: soon\n")
	ini := filepath.Join(dir, "monitors.ini")
	writeFile(t, ini, "app=x\n")

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), bad, ini} {
		if _, err := LoadSettings(path); err == nil {
			t.Errorf("LoadSettings(%s): expected error", filepath.Base(path))
		}
	}
}

func TestLoadSettingsSecretsFromEnv(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")

	path := filepath.Join(t.TempDir(), "monitors.json")
	writeFile(t, path, `{"wakeword": {"stt": {"openai": {"apiKey": "from-file"}}}}`)
	t.Setenv("OPENAI_API_KEY", "from-env")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	stt := s.WakeWord.STT
	if stt.Google.APIKey != "g-key" || stt.Deepgram.APIKey != "dg-key" {
		t.Errorf("env keys not applied: %+v", stt)
	}
	if stt.OpenAI.APIKey != "from-file" {
		t.Errorf("file key should win over env, got %q", stt.OpenAI.APIKey)
	}
}

func TestWatchReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.json")
	writeFile(t, path, `{"wakeWord": "nova"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	if err := Watch(ctx, path, func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Unrelated files in the same directory are ignored.
	writeFile(t, filepath.Join(dir, "other.json"), `{}`)
	writeFile(t, path, `{"wakeWord": "jarvis"}`)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
