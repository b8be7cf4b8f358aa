package handshake

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"editdesk/api/internal/rbac"
)

// Resolver derives a frame's Context from its host page and announces
// readiness to the frame's windows.
type Resolver struct {
	frame Frame
	now   func() time.Time
}

func NewResolver(frame Frame) *Resolver {
	return &Resolver{frame: frame, now: time.Now}
}

// Resolve reads doc once. On success a WidgetReady message is posted to every
// distinct window of the frame; post failures never fail the resolution.
func (r *Resolver) Resolve(ctx context.Context, doc *Document) (Context, error) {
	resolved, err := Inspect(doc)
	if err != nil {
		log.Warn().Err(err).Msg("handshake not configured")
		return Context{}, err
	}

	sent := r.frame.Broadcast(ctx, NewWidgetReady(resolved, r.now()))
	log.Info().
		Str("project_id", resolved.ProjectID).
		Str("role", string(resolved.Role)).
		Int("announced", sent).
		Msg("handshake resolved")
	return resolved, nil
}

// Inspect resolves a Context from doc without announcing it.
//
// The project id comes from the designer root, then the client root, then
// the first element carrying data-project-id. The role comes from
// data-user-role on the designer root, the client root or, when neither
// exists, the first element carrying one. Otherwise it is inferred from which
// role root exists.
func Inspect(doc *Document) (Context, error) {
	designer := doc.ElementByID(DesignerRootID)
	client := doc.ElementByID(ClientRootID)

	container := designer
	if attrValue(container, ProjectIDAttr) == "" {
		container = client
	}
	if attrValue(container, ProjectIDAttr) == "" {
		container = doc.FirstWithAttr(ProjectIDAttr)
	}
	projectID := attrValue(container, ProjectIDAttr)
	if projectID == "" {
		return Context{}, ErrMissingProjectID
	}

	// Only a page without role roots may carry its role on an arbitrary element.
	roleSource := designer
	if roleSource == nil {
		roleSource = client
	}
	if roleSource == nil {
		roleSource = doc.FirstWithAttr(UserRoleAttr)
	}
	role, ok := rbac.Parse(attrValue(roleSource, UserRoleAttr))
	if !ok {
		switch {
		case designer != nil:
			role = rbac.RoleDesigner
		case client != nil:
			role = rbac.RoleClient
		default:
			role = ""
		}
	}

	return Context{ProjectID: projectID, Role: role}, nil
}
