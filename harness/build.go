package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Discover lists the buildable harnesses under harnessesDir: every
// subdirectory holding a Cargo.toml or Go sources, in name order. Only
// goref ships in this repository; harnesses for other engines are dropped
// into the directory from outside.
func Discover(harnessesDir string) ([]string, error) {
	entries, err := os.ReadDir(harnessesDir)
	if err != nil {
		return nil, fmt.Errorf("read harnesses dir: %w", err)
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		srcDir := filepath.Join(harnessesDir, e.Name())
		goFiles, _ := filepath.Glob(filepath.Join(srcDir, "*.go"))

		if fileExists(filepath.Join(srcDir, "Cargo.toml")) || len(goFiles) > 0 {
			names = append(names, e.Name())
		}
	}

	return names, nil
}

// ResolveBinary returns the expected binary path for an engine given the
// harnesses root directory.
func ResolveBinary(harnessesDir, name string) string {
	srcDir := filepath.Join(harnessesDir, name)

	if fileExists(filepath.Join(srcDir, "Cargo.toml")) {
		return filepath.Join(srcDir, "target", "release", name+"-harness")
	}

	return filepath.Join(srcDir, name+"-harness")
}

// Build compiles the harness binary for the named engine. Rust harnesses
// (Cargo.toml) build with cargo, everything else with go build.
func Build(
	ctx context.Context,
	logger *slog.Logger,
	harnessesDir string,
	name string,
) (string, error) {
	srcDir := filepath.Join(harnessesDir, name)
	binPath := ResolveBinary(harnessesDir, name)

	if !fileExists(srcDir) {
		return "", fmt.Errorf("unknown engine %q: no harness at %s", name, srcDir)
	}

	logger.InfoContext(ctx, "building harness",
		slog.String("engine", name),
		slog.String("source_dir", srcDir),
	)

	var cmd *exec.Cmd

	if fileExists(filepath.Join(srcDir, "Cargo.toml")) {
		cmd = exec.CommandContext(ctx, "cargo", "build", "--release")
	} else {
		cmd = exec.CommandContext(ctx, "go", "build", "-o", filepath.Base(binPath), ".")
	}

	cmd.Dir = srcDir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build %s: %w", name, err)
	}

	if !fileExists(binPath) {
		return "", fmt.Errorf("build %s: binary not found at %s", name, binPath)
	}

	logger.InfoContext(ctx, "harness built",
		slog.String("engine", name),
		slog.String("binary", binPath),
	)

	return binPath, nil
}

// CommandConfig holds the resolved command, extra arguments, and
// environment variables needed to run a harness binary.
type CommandConfig struct {
	Binary    string
	ExtraArgs []string
	Env       []string
}

// WrapCommand returns the exec configuration needed to run a harness
// binary. JVM harnesses packaged as jars run under java -jar.
func WrapCommand(binPath string) CommandConfig {
	if strings.HasSuffix(binPath, ".jar") {
		return CommandConfig{
			Binary:    "java",
			ExtraArgs: []string{"-jar", binPath},
		}
	}

	return CommandConfig{Binary: binPath}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
