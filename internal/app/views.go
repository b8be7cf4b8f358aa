package app

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"editdesk/api/internal/rbac"
	"editdesk/api/internal/store"
)

func contextWithTimeout(c echo.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), timeout)
}

func nullableRole(role rbac.Role) any {
	if role == "" {
		return nil
	}
	return string(role)
}

func presentRequest(item store.EditRequest) map[string]any {
	replies := item.Replies
	if replies == nil {
		replies = []store.Reply{}
	}
	return map[string]any{
		"id":          item.ID,
		"projectId":   item.ProjectID,
		"pageUrl":     item.PageURL,
		"sectionId":   item.SectionID,
		"message":     item.Message,
		"status":      item.Status,
		"submittedBy": item.SubmittedBy,
		"replies":     replies,
		"createdAt":   item.CreatedAt,
		"updatedAt":   item.UpdatedAt,
	}
}

func presentRequests(items []store.EditRequest) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, presentRequest(item))
	}
	return out
}

func presentProject(item store.Project) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"designerId": item.DesignerID,
		"name":       item.Name,
		"url":        item.URL,
		"slug":       item.Slug,
		"createdAt":  item.CreatedAt,
		"updatedAt":  item.UpdatedAt,
	}
}

func presentComment(item store.Comment) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"projectId": item.ProjectID,
		"pageUrl":   item.PageURL,
		"userId":    item.UserID,
		"parentId":  item.ParentID,
		"content":   item.Content,
		"x":         item.X,
		"y":         item.Y,
		"status":    item.Status,
		"createdAt": item.CreatedAt,
		"updatedAt": item.UpdatedAt,
	}
}

func presentComments(items []store.Comment) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, presentComment(item))
	}
	return out
}
