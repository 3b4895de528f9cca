// Package buildtool detects a project's build tool from its descriptor files and runs it.
package buildtool

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Tool describes one supported build tool.
type Tool struct {
	Kind        project.ToolKind
	Descriptors []string
	// OutputDir is relative to the working copy root.
	OutputDir string
	command   func(workingCopy string) []string
}

// Command returns the argv used to build workingCopy.
func (t Tool) Command(workingCopy string) []string { return t.command(workingCopy) }

// Matches reports whether any descriptor exists in the working copy root.
func (t Tool) Matches(workingCopy string) bool {
	for _, d := range t.Descriptors {
		if info, err := os.Stat(filepath.Join(workingCopy, d)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func fixed(argv ...string) func(string) []string {
	return func(string) []string { return argv }
}

func gradleCommand(workingCopy string) []string {
	if _, err := os.Stat(filepath.Join(workingCopy, "gradlew")); err == nil {
		return []string{"sh", "gradlew", "build", "-x", "test", "--no-daemon"}
	}
	return []string{"gradle", "build", "-x", "test", "--no-daemon"}
}

// registry is ordered by detection priority; the first match wins.
var registry = []Tool{
	{Kind: project.ToolMaven, Descriptors: []string{"pom.xml"}, OutputDir: "target", command: fixed("mvn", "-B", "-DskipTests", "clean", "package")},
	{Kind: project.ToolGradle, Descriptors: []string{"build.gradle", "build.gradle.kts"}, OutputDir: filepath.Join("build", "libs"), command: gradleCommand},
	{Kind: project.ToolSBT, Descriptors: []string{"build.sbt"}, OutputDir: "target", command: fixed("sbt", "-batch", "package")},
	{Kind: project.ToolNPM, Descriptors: []string{"package.json"}, OutputDir: "dist", command: fixed("npm", "run", "build")},
	{Kind: project.ToolGo, Descriptors: []string{"go.mod"}, OutputDir: "bin", command: fixed("go", "build", "-o", "bin/", "./...")},
	{Kind: project.ToolMake, Descriptors: []string{"Makefile", "makefile", "GNUmakefile"}, OutputDir: "dist", command: fixed("make")},
	{Kind: project.ToolScript, Descriptors: []string{"build.sh"}, OutputDir: "dist", command: fixed("sh", "build.sh")},
}

// Lookup returns the tool registered for kind.
func Lookup(kind project.ToolKind) (Tool, bool) {
	for _, t := range registry {
		if t.Kind == kind {
			return t, true
		}
	}
	return Tool{}, false
}

// Detect selects the tool for a working copy. A declared kind skips
// detection but its descriptor must still be present.
func Detect(workingCopy string, declared project.ToolKind) (Tool, error) {
	if declared != "" {
		t, ok := Lookup(declared)
		if !ok {
			return Tool{}, project.ErrUnsupportedProjectLayout.WithContext("tool", string(declared))
		}
		if !t.Matches(workingCopy) {
			return Tool{}, project.ErrUnsupportedProjectLayout.
				WithContext("tool", string(declared)).
				WithContext("missing", t.Descriptors)
		}
		return t, nil
	}
	for _, t := range registry {
		if t.Matches(workingCopy) {
			return t, nil
		}
	}
	return Tool{}, project.ErrUnsupportedProjectLayout.WithContext("path", workingCopy)
}

// OutputDir returns the absolute output directory for kind within workingCopy, or "" if unknown.
func OutputDir(workingCopy string, kind project.ToolKind) string {
	t, ok := Lookup(kind)
	if !ok {
		return ""
	}
	return filepath.Join(workingCopy, t.OutputDir)
}
