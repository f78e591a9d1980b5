package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doctalk/doctalk/internal/models"
	"github.com/doctalk/doctalk/internal/rag"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", models.NewError(models.ErrKindValidation, "bad input"), http.StatusBadRequest},
		{"not found", models.NewError(models.ErrKindNotFound, "missing"), http.StatusNotFound},
		{"embedding", models.NewError(models.ErrKindEmbedding, "provider down"), http.StatusBadGateway},
		{"vector search", models.NewError(models.ErrKindVectorSearch, "qdrant down"), http.StatusBadGateway},
		{"generation", models.NewError(models.ErrKindGeneration, "llm failed"), http.StatusBadGateway},
		{"duplicate document", fmt.Errorf("ingest: %w", rag.ErrDuplicateDocument), http.StatusConflict},
		{"untagged", errors.New("boom"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusForError(tc.err))
		})
	}
}
