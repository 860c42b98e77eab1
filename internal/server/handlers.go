package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/denismitr/pathkeeper/internal/report"
)

const maxBodyBytes = 8 << 20

var errInvalidBody = errors.New("invalid request body")

type saveRequest struct {
	Identifier string          `json:"identifier"`
	Data       json.RawMessage `json:"data"`
}

type rebrandRequest struct {
	Identifier string `json:"identifier"`
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *Server) handleSave() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req saveRequest
		if err := decodeBody(c, &req); err != nil {
			writeError(c, err)
			return
		}

		rec, err := s.records.Save(c.Request.Context(), req.Identifier, req.Data)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, rec)
	}
}

func (s *Server) handleRebrand() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rebrandRequest
		if err := decodeBody(c, &req); err != nil {
			writeError(c, err)
			return
		}

		rec, err := s.records.Lookup(c.Request.Context(), req.Identifier)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) handlePaths() gin.HandlerFunc {
	return func(c *gin.Context) {
		paths, err := s.records.Paths(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, paths)
	}
}

func (s *Server) handleInsertItems() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c)
		if err != nil {
			writeError(c, err)
			return
		}

		docs, err := s.reports.InsertItems(c.Request.Context(), s.cfg.ItemsCollection, body)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, docs)
	}
}

func (s *Server) handleFields() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, err := s.reports.Fields(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, fields)
	}
}

func (s *Server) handleGenerateReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c)
		if err != nil {
			writeError(c, err)
			return
		}

		req, err := report.ParseRequest(body, s.reports.Collections())
		if err != nil {
			writeError(c, err)
			return
		}

		out, err := s.reports.Generate(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// handleDynamicRead serves GET and HEAD of every path saved since start.
func (s *Server) handleDynamicRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "Not found"})
			return
		}

		// escaped like the saved paths, never decoded
		rec, err := s.records.Resolve(c.Request.Context(), c.Request.URL.EscapedPath())
		if err != nil {
			writeError(c, err)
			return
		}

		c.Data(http.StatusOK, "application/json; charset=utf-8", rec.Data)
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errInvalidBody, err.Error())
	}
	return body, nil
}

func decodeBody(c *gin.Context, dest interface{}) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return errors.Wrap(errInvalidBody, err.Error())
	}

	return nil
}
