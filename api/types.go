// Package api holds the request and response types of the bento HTTP API
// together with a small typed client. The package is self-contained so
// external automation can depend on it without pulling in the stores.
package api

import (
	"fmt"
	"time"
)

// StatusError is the error returned for non-2xx API responses. The server
// sends {"error": message}; the HTTP status line fills the rest.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the bento server logs for details"
	}
}

// VersionResponse is returned by GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

// BentoSummary is one row of a bento listing.
type BentoSummary struct {
	Tag          string    `json:"tag"`
	Service      string    `json:"service"`
	Size         int64     `json:"size"`
	CreationTime time.Time `json:"creation_time"`
}

// ListBentoResponse is returned by GET /api/bentos and GET /api/bentos/:name.
type ListBentoResponse struct {
	Bentos []BentoSummary `json:"bentos"`
}

// BentoModel describes one model referenced by a bento.
type BentoModel struct {
	Tag          string    `json:"tag"`
	Module       string    `json:"module,omitempty"`
	Alias        string    `json:"alias,omitempty"`
	CreationTime time.Time `json:"creation_time"`
}

// BentoResponse is returned by GET /api/bentos/:name/:version. Manifest
// carries the stored bento.yaml verbatim for callers that want the full
// document rather than the summary fields.
type BentoResponse struct {
	Tag            string            `json:"tag"`
	Service        string            `json:"service"`
	BentomlVersion string            `json:"bentoml_version"`
	Size           int64             `json:"size"`
	CreationTime   time.Time         `json:"creation_time"`
	Labels         map[string]string `json:"labels,omitempty"`
	Models         []BentoModel      `json:"models,omitempty"`
	Manifest       string            `json:"manifest"`
}

// ModelSummary is one row of a model listing.
type ModelSummary struct {
	Tag          string    `json:"tag"`
	Module       string    `json:"module,omitempty"`
	Size         int64     `json:"size"`
	CreationTime time.Time `json:"creation_time"`
}

// ListModelResponse is returned by GET /api/models.
type ListModelResponse struct {
	Models []ModelSummary `json:"models"`
}

// ImportResponse is returned by POST /api/bentos/import once the uploaded
// archive has been saved into the store.
type ImportResponse struct {
	Tag string `json:"tag"`
}
