// Package project defines the records shared by the fetcher, build adapter, tracker and orchestrator.
package project

import (
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

// DefaultRef is checked out when a project does not name a branch, tag or commit.
const DefaultRef = "main"

// Status is the build state of a project or the terminal status of a run.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailure   Status = "FAILURE"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s ends a build run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus accepts any case; unknown input yields "".
func ParseStatus(raw string) Status {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusIdle, StatusRunning, StatusSuccess, StatusFailure, StatusCancelled:
		return s
	default:
		return ""
	}
}

// ToolKind names a supported build tool.
type ToolKind string

const (
	ToolMaven  ToolKind = "maven"
	ToolGradle ToolKind = "gradle"
	ToolSBT    ToolKind = "sbt"
	ToolNPM    ToolKind = "npm"
	ToolGo     ToolKind = "go"
	ToolMake   ToolKind = "make"
	ToolScript ToolKind = "script"
)

// ToolKinds lists every known kind in detection priority order.
var ToolKinds = []ToolKind{ToolMaven, ToolGradle, ToolSBT, ToolNPM, ToolGo, ToolMake, ToolScript}

// ParseToolKind returns "" and false for unknown kinds.
func ParseToolKind(raw string) (ToolKind, bool) {
	k := ToolKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range ToolKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Project is a registered git repository that can be built.
type Project struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	Ref         string             `json:"ref"`
	Tool        ToolKind           `json:"tool,omitempty"`
	Auth        *config.AuthConfig `json:"auth,omitempty"`
	Description string             `json:"description,omitempty"`

	BuildStatus Status    `json:"build_status"`
	LastBuildAt time.Time `json:"last_build_at,omitzero"`
	LastCommit  string    `json:"last_commit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is the id and name pair served by the select listing.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Spec carries the user supplied attributes of a new project.
type Spec struct {
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	Ref         string             `json:"ref,omitempty"`
	Tool        string             `json:"tool,omitempty"`
	Auth        *config.AuthConfig `json:"auth,omitempty"`
	Description string             `json:"description,omitempty"`
}

// Normalize trims input and fills the default ref.
func (s Spec) Normalize() Spec {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.Ref = strings.TrimSpace(s.Ref)
	if s.Ref == "" {
		s.Ref = DefaultRef
	}
	s.Tool = strings.TrimSpace(s.Tool)
	return s
}

// Validate reports the first problem with the spec as a validation error.
func (s Spec) Validate() error {
	if s.Name == "" {
		return ferrors.ValidationError("project name is required").Build()
	}
	if strings.ContainsAny(s.Name, "/\\") {
		return ferrors.ValidationError("project name must not contain path separators").
			WithContext("name", s.Name).Build()
	}
	if s.URL == "" {
		return ferrors.ValidationError("repository url is required").Build()
	}
	if !looksLikeRepoURL(s.URL) {
		return ferrors.ValidationError("repository url is not a valid git url").
			WithContext("url", s.URL).Build()
	}
	if s.Tool != "" {
		if _, ok := ParseToolKind(s.Tool); !ok {
			return ferrors.ValidationError("unknown build tool").
				WithContext("tool", s.Tool).Build()
		}
	}
	if s.Auth != nil {
		switch s.Auth.Type {
		case "", config.AuthTypeNone, config.AuthTypeSSH, config.AuthTypeToken, config.AuthTypeBasic:
		default:
			return ferrors.ValidationError("unsupported auth type").
				WithContext("type", string(s.Auth.Type)).Build()
		}
	}
	return nil
}

// looksLikeRepoURL accepts URLs with a scheme, scp-like ssh addresses and local paths.
func looksLikeRepoURL(raw string) bool {
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") {
		return true
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && (u.Host != "" || u.Scheme == "file") {
		return true
	}
	at := strings.Index(raw, "@")
	colon := strings.Index(raw, ":")
	return at > 0 && colon > at
}

// New builds a project from a validated spec.
func New(id string, s Spec, now time.Time) *Project {
	tool, _ := ParseToolKind(s.Tool)
	return &Project{
		ID:          id,
		Name:        s.Name,
		URL:         s.URL,
		Ref:         s.Ref,
		Tool:        tool,
		Auth:        s.Auth,
		Description: s.Description,
		BuildStatus: StatusIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Public returns a copy with credentials redacted.
func (p *Project) Public() *Project {
	cp := *p
	cp.Auth = p.Auth.Redacted()
	return &cp
}
