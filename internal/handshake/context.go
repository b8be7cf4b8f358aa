// Package handshake resolves the project context of an embedded frame from
// its host page and carries the namespaced cross-window messages exchanged
// with that host.
package handshake

import (
	"errors"

	"editdesk/api/internal/rbac"
)

const (
	Namespace = "lef"

	DesignerRootID = "lef-designer-root"
	ClientRootID   = "lef-client-root"

	ProjectIDAttr = "data-project-id"
	UserRoleAttr  = "data-user-role"

	// DefaultFrameWindow names the frame's own window when the caller does
	// not.
	DefaultFrameWindow = "frame"
)

// ErrMissingProjectID means the host page carries no project id. Callers must
// not issue scoped queries until a config update delivers one.
var ErrMissingProjectID = errors.New("missing project id")

// Context is the resolved configuration of a frame. It is a value: a new
// configuration produces a new Context, the old one is never mutated.
type Context struct {
	ProjectID string    `json:"projectId"`
	Role      rbac.Role `json:"role,omitempty"`
}

func (c Context) Configured() bool {
	return c.ProjectID != ""
}

func (c Context) HasRole() bool {
	return c.Role != ""
}
