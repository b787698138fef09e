package handler

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samudra-hr/hris-api/internal/models"
	"github.com/samudra-hr/hris-api/internal/workflow"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
	"github.com/samudra-hr/hris-api/pkg/response"
)

type documentSigner interface {
	Sign(documentID, relPath string) (string, time.Time, error)
	Parse(token string) (documentID, relPath string, expiresAt time.Time, err error)
}

type artifactStore interface {
	Open(filename string) (*os.File, error)
}

// DocumentHandler mints signed download links for generated documents and
// serves them back. The download route itself is unauthenticated; the token
// carries the authorisation.
type DocumentHandler struct {
	service workflowService
	signer  documentSigner
	storage artifactStore
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service workflowService, signer documentSigner, storage artifactStore) *DocumentHandler {
	return &DocumentHandler{service: service, signer: signer, storage: storage}
}

// Link godoc
// @Summary Get a signed download link for an instance's generated document
// @Tags Documents
// @Produce json
// @Param id path string true "Instance id"
// @Success 200 {object} response.Envelope
// @Router /workflows/instances/{id}/document [get]
func (h *DocumentHandler) Link(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	instance, err := h.service.Get(c.Request.Context(), c.Param("id"), actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}

	documentID := latestDocumentID(instance)
	if documentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no generated document for this instance"))
		return
	}

	token, expiresAt, err := h.signer.Sign(documentID, documentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"documentId": documentID,
		"url":        "/api/v1/documents/" + token,
		"expiresAt":  expiresAt.UTC(),
	}, nil)
}

// Download godoc
// @Summary Download a generated document by signed token
// @Tags Documents
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /documents/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	documentID, relPath, _, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	file, err := h.storage.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "document no longer available"))
		return
	}
	defer file.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="`+documentID+`"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

// latestDocumentID walks history newest-first for a completed
// generate_document effect.
func latestDocumentID(instance *models.WorkflowInstance) string {
	for i := len(instance.History) - 1; i >= 0; i-- {
		for _, effect := range instance.History[i].Effects {
			if effect.Kind == workflow.EffectGenerateDocument &&
				effect.Status == models.EffectStatusCompleted &&
				effect.ResultID != nil {
				return *effect.ResultID
			}
		}
	}
	return ""
}
