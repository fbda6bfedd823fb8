package app

import (
	"context"
	"net/http"
	"strings"

	"compass/api/internal/store"
	"compass/api/internal/util"
)

type CommentInput struct {
	TargetKind string `json:"targetKind"`
	TargetID   string `json:"targetId"`
	Body       string `json:"body"`
}

const maxCommentLength = 4000

func (s *Service) CreateComment(ctx context.Context, session Session, input CommentInput) (map[string]any, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment body is required", nil)
	}
	if len(body) > maxCommentLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment body too long", map[string]any{"max": maxCommentLength})
	}
	if _, err := s.entityContext(ctx, session, input.TargetKind, input.TargetID, true); err != nil {
		return nil, err
	}

	comment := store.Comment{
		ID:         util.NewID("cmt"),
		TargetKind: input.TargetKind,
		TargetID:   input.TargetID,
		Author:     session.UserName,
		Body:       body,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	return commentJSON(comment), nil
}

func (s *Service) ListComments(ctx context.Context, session Session, targetKind, targetID string) ([]map[string]any, error) {
	if _, err := s.entityContext(ctx, session, targetKind, targetID, false); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, targetKind, targetID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentJSON(c))
	}
	return out, nil
}

func commentJSON(c store.Comment) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"targetKind": c.TargetKind,
		"targetId":   c.TargetID,
		"author":     c.Author,
		"body":       c.Body,
		"createdAt":  c.CreatedAt,
	}
}
