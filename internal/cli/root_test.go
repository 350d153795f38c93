package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand_Help(t *testing.T) {
	rootCmd.SetArgs([]string{"--help"})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := buf.String()
	if output == "" {
		t.Error("expected help output, got empty string")
	}
	if !contains(output, "buildprep") {
		t.Error("expected help to contain 'buildprep'")
	}
	for _, group := range []string{"Configuration:", "Cache:", "Preparation:", "Recovery:"} {
		if !contains(output, group) {
			t.Errorf("expected help to contain group %q", group)
		}
	}
}

func TestRootCommand_VersionSubcommand(t *testing.T) {
	SetVersion("1.2.3")
	rootCmd.SetArgs([]string{"version"})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got := strings.TrimSpace(buf.String()); got != "1.2.3" {
		t.Errorf("version output = %q, want %q", got, "1.2.3")
	}
}

func TestRootCommand_InvalidCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"invalid-command"})
	var buf bytes.Buffer
	rootCmd.SetErr(&buf)
	defer rootCmd.SetErr(nil)

	err := rootCmd.Execute()
	if err == nil {
		t.Error("expected error for invalid command")
	}
	if code := ExitCode(err); code != ExitFailure {
		t.Errorf("ExitCode() = %d, want %d", code, ExitFailure)
	}
}

func TestSetVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"normal version", "1.2.3", "1.2.3"},
		{"empty version keeps previous", "", "1.2.3"},
		{"dev version", "dev", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersion(tt.version)
			if rootCmd.Version != tt.want {
				t.Errorf("SetVersion(%q) left %q, want %q", tt.version, rootCmd.Version, tt.want)
			}
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	paths := [][]string{
		{"config", "create"},
		{"config", "validate"},
		{"config", "add-source"},
		{"config", "add-injection"},
		{"config", "add-batch"},
		{"validate"},
		{"cache", "populate"},
		{"cache", "list"},
		{"cache", "clean"},
		{"prepare", "run"},
		{"prepare", "inject"},
		{"prepare", "cleanup"},
		{"rollback", "list"},
		{"rollback", "restore"},
		{"rollback", "clean"},
		{"completion", "bash"},
		{"version"},
	}

	for _, path := range paths {
		name := strings.Join(path, " ")
		t.Run(name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find(path)
			if err != nil {
				t.Fatalf("Find(%q) error = %v", name, err)
			}
			if cmd.Name() != path[len(path)-1] {
				t.Errorf("Find(%q) = %q", name, cmd.Name())
			}
		})
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
