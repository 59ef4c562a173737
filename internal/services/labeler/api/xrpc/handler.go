// Package xrpc exposes the label query and mutation surface over HTTP.
package xrpc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/imigueldiaz/pride-labeler/internal/platform/errors"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/domain"
)

// Labeler is the label read and mutation surface the handler fronts.
type Labeler interface {
	QueryLabels(ctx context.Context, subject string) ([]domain.LabelView, error)
	CreateLabels(ctx context.Context, subject string, negate, create []string) ([]domain.LabelView, error)
}

// Signer produces the signature for an emitted label. The signing scheme is
// owned by the collaborator behind this interface.
type Signer interface {
	Sign(ctx context.Context, label domain.LabelView) ([]byte, error)
}

// NopSigner emits unsigned labels.
type NopSigner struct{}

func (NopSigner) Sign(context.Context, domain.LabelView) ([]byte, error) {
	return nil, nil
}

// labelJSON is the wire rendering of one label.
type labelJSON struct {
	Ver int    `json:"ver"`
	Src string `json:"src"`
	URI string `json:"uri"`
	Val string `json:"val"`
	Neg bool   `json:"neg,omitempty"`
	Cts string `json:"cts"`
	Sig []byte `json:"sig,omitempty"`
}

type queryLabelsResponse struct {
	Cursor string      `json:"cursor"`
	Labels []labelJSON `json:"labels"`
}

type createLabelsRequest struct {
	URI    string   `json:"uri"`
	Create []string `json:"create"`
	Negate []string `json:"negate"`
}

type createLabelsResponse struct {
	Labels []labelJSON `json:"labels"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler serves the label endpoints over a narrow Labeler interface.
type Handler struct {
	labeler Labeler
	signer  Signer
}

// NewHandler validates dependencies and builds the handler.
func NewHandler(labeler Labeler, signer Signer) (*Handler, error) {
	if labeler == nil {
		return nil, fmt.Errorf("labeler is required")
	}
	if signer == nil {
		signer = NopSigner{}
	}
	return &Handler{labeler: labeler, signer: signer}, nil
}

// Register mounts the label endpoints on the router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/xrpc/com.atproto.label.queryLabels", h.queryLabels)
	router.POST("/xrpc/com.atproto.label.createLabels", h.createLabels)
}

// NewRouter builds a gin engine with tracing middleware, the label
// endpoints, and a health probe.
func NewRouter(labeler Labeler, signer Signer, serviceName string) (*gin.Engine, error) {
	handler, err := NewHandler(labeler, signer)
	if err != nil {
		return nil, err
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	handler.Register(router)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router, nil
}

// queryLabels returns the active labels for the first uriPatterns value, or
// for every subject when no pattern is given. A pure read.
func (h *Handler) queryLabels(c *gin.Context) {
	var subject string
	if patterns := c.QueryArray("uriPatterns"); len(patterns) > 0 {
		subject = strings.TrimSpace(patterns[0])
	}

	views, err := h.labeler.QueryLabels(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		return
	}
	labels, err := h.render(c.Request.Context(), views)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queryLabelsResponse{
		Cursor: fmt.Sprintf("%d", len(labels)),
		Labels: labels,
	})
}

// createLabels applies an explicit mutation: negations first, then
// creations. Responds with the subject's resolved labels afterwards.
func (h *Handler) createLabels(c *gin.Context) {
	var req createLabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Wrap(errors.CodeInvalidRequest, "decode create labels request", err))
		return
	}

	views, err := h.labeler.CreateLabels(c.Request.Context(), req.URI, req.Negate, req.Create)
	if err != nil {
		writeError(c, err)
		return
	}
	labels, err := h.render(c.Request.Context(), views)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, createLabelsResponse{Labels: labels})
}

func (h *Handler) render(ctx context.Context, views []domain.LabelView) ([]labelJSON, error) {
	labels := make([]labelJSON, 0, len(views))
	for _, view := range views {
		sig, err := h.signer.Sign(ctx, view)
		if err != nil {
			return nil, errors.Wrap(errors.CodeUnknown, fmt.Sprintf("sign label %s for %s", view.Val, view.URI), err)
		}
		labels = append(labels, labelJSON{
			Ver: 1,
			Src: view.Src,
			URI: view.URI,
			Val: view.Val,
			Cts: view.Cts.UTC().Format(time.RFC3339),
			Sig: sig,
		})
	}
	return labels, nil
}

func writeError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	c.JSON(code.HTTPStatus(), errorResponse{
		Error:   string(code),
		Message: err.Error(),
	})
}
