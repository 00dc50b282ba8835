package main

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"kgraph/backend/internal/graph"
	"kgraph/backend/internal/ingest"
	"kgraph/backend/internal/service"
	pkgerrors "kgraph/backend/pkg/errors"
)

func registerRoutes(router *gin.Engine, repo *graph.Repository, ingestSvc *service.IngestService, analysisSvc *service.AnalysisService) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/process", processHandler(ingestSvc))

		api.POST("/graph/fetch", func(c *gin.Context) {
			var req struct {
				Limit   int `json:"limit"`
				Filters struct {
					Types      []string `json:"types"`
					DocumentID string   `json:"documentId"`
				} `json:"filters"`
			}
			// Body is optional: an empty request means "everything, default limit"
			_ = c.ShouldBindJSON(&req)

			view, err := repo.Fetch(c.Request.Context(), req.Limit, req.Filters.Types, req.Filters.DocumentID)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, view)
		})

		api.POST("/graph/search", func(c *gin.Context) {
			var req struct {
				Query string `json:"query" binding:"required"`
				Limit int    `json:"limit"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
				return
			}

			nodes, err := repo.Search(c.Request.Context(), req.Query, req.Limit)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"nodes": nodes, "count": len(nodes)})
		})

		api.GET("/graph/stats", func(c *gin.Context) {
			stats, err := repo.Stats(c.Request.Context())
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, stats)
		})

		api.GET("/graph/neighbors/:id", func(c *gin.Context) {
			view, err := repo.Neighbors(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, view)
		})

		api.POST("/graph/entity", entityHandler(repo))
		api.POST("/graph/relationship", relationshipHandler(repo))

		api.POST("/graph/analyze", func(c *gin.Context) {
			var req struct {
				NodeID string `json:"nodeId" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "nodeId is required"})
				return
			}

			summary, err := analysisSvc.AnalyzeNode(c.Request.Context(), req.NodeID)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"nodeId": req.NodeID, "analysis": summary})
		})

		api.GET("/documents", func(c *gin.Context) {
			docs, err := repo.ListDocuments(c.Request.Context())
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
		})

		api.DELETE("/documents", func(c *gin.Context) {
			var req struct {
				DocumentID string `json:"documentId" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "documentId is required"})
				return
			}

			deleted, err := repo.DeleteByDocument(c.Request.Context(), req.DocumentID)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"documentId": req.DocumentID, "nodesDeleted": deleted})
		})
	}

	router.POST("/clear", func(c *gin.Context) {
		var req struct {
			Scope string `json:"scope"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.Scope == "" {
			req.Scope = "all"
		}

		deleted, err := repo.ClearScope(c.Request.Context(), req.Scope)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"scope": req.Scope, "deleted": deleted})
	})
}

// processRequest is the JSON shape for ingestion: tabular rows, raw text,
// or both may be present
type processRequest struct {
	DocumentID string     `json:"documentId"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
	Text       string     `json:"text"`
}

// processHandler ingests a batch from either a JSON body or an uploaded
// file (.csv for tabular data, anything else treated as plain text)
func processHandler(svc *service.IngestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
			processUpload(c, svc)
			return
		}

		var req processRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		switch {
		case len(req.Columns) > 0:
			rows, err := service.RowsFromTable(req.Columns, req.Rows)
			if err != nil {
				respondError(c, err)
				return
			}
			result, err := svc.IngestRows(c.Request.Context(), rows, req.DocumentID)
			respondIngest(c, result, err)
		case req.Text != "":
			result, err := svc.IngestText(c.Request.Context(), req.Text, req.DocumentID)
			respondIngest(c, result, err)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "either columns/rows or text is required"})
		}
	}
}

func processUpload(c *gin.Context, svc *service.IngestService) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()

	documentID := c.PostForm("documentId")
	if documentID == "" {
		documentID = fileHeader.Filename
	}

	if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		rows, err := service.ParseCSV(file)
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := svc.IngestRows(c.Request.Context(), rows, documentID)
		respondIngest(c, result, err)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	result, err := svc.IngestText(c.Request.Context(), string(content), documentID)
	respondIngest(c, result, err)
}

// respondIngest reports an ingestion result; on partial failure the
// committed counts still go back so the caller knows how far the batch got
func respondIngest(c *gin.Context, result *service.Result, err error) {
	if err != nil {
		status := statusForError(err)
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["result"] = result
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, result)
}

type entityRequest struct {
	Action string `json:"action" binding:"required"`
	Data   struct {
		ID           string                 `json:"id" binding:"required"`
		Label        string                 `json:"label"`
		Type         string                 `json:"type"`
		PartitionKey string                 `json:"partitionKey"`
		Properties   map[string]interface{} `json:"properties"`
	} `json:"data" binding:"required"`
}

func entityHandler(repo *graph.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req entityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "action and data.id are required"})
			return
		}

		ctx := c.Request.Context()
		switch req.Action {
		case "create":
			nodeType := req.Data.Type
			if nodeType == "" {
				nodeType = string(ingest.TypeConcept)
			}
			err := repo.UpsertNode(ctx, graph.Node{
				ID:           req.Data.ID,
				Label:        req.Data.Label,
				Type:         nodeType,
				PartitionKey: req.Data.PartitionKey,
				Properties:   propertiesFromJSON(req.Data.Properties),
			})
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": req.Data.ID, "action": "created"})
		case "update":
			props := propertiesFromJSON(req.Data.Properties)
			if req.Data.Label != "" {
				props["label"] = graph.String(req.Data.Label)
			}
			err := repo.UpdateNode(ctx, req.Data.ID, props, req.Data.PartitionKey)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": req.Data.ID, "action": "updated"})
		case "delete":
			err := repo.DeleteNode(ctx, req.Data.ID, req.Data.PartitionKey)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": req.Data.ID, "action": "deleted"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of: create, update, delete"})
		}
	}
}

type relationshipRequest struct {
	Action string `json:"action" binding:"required"`
	Data   struct {
		ID         string                 `json:"id"`
		Source     string                 `json:"source"`
		Target     string                 `json:"target"`
		Label      string                 `json:"label"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"data" binding:"required"`
}

func relationshipHandler(repo *graph.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req relationshipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "action and data are required"})
			return
		}

		ctx := c.Request.Context()
		switch req.Action {
		case "create":
			err := repo.UpsertEdge(ctx, graph.Edge{
				ID:         req.Data.ID,
				From:       req.Data.Source,
				To:         req.Data.Target,
				Label:      req.Data.Label,
				Properties: propertiesFromJSON(req.Data.Properties),
			})
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"action": "created", "source": req.Data.Source, "target": req.Data.Target})
		case "delete":
			if req.Data.ID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "data.id is required to delete a relationship"})
				return
			}
			if err := repo.DeleteEdge(ctx, req.Data.ID); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"action": "deleted", "id": req.Data.ID})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of: create, delete"})
		}
	}
}

func propertiesFromJSON(raw map[string]interface{}) graph.Properties {
	props := graph.Properties{}
	for k, v := range raw {
		if v == nil {
			continue
		}
		props[k] = graph.Coerce(v)
	}
	return props
}

// respondError maps domain error categories onto HTTP statuses
func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation):
		return http.StatusBadRequest
	case pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeNotFound):
		return http.StatusNotFound
	case pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeThrottling):
		return http.StatusServiceUnavailable
	case pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeExtraction),
		pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
