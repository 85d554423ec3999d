package services

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/catalog"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/table"
	"mocap_platform/motion_vault/utils"
)

// Graphs are motion-primitive transition structures keyed by skeleton. They
// carry a single data blob and no ownership column, so mutations are gated on
// authentication only.
type GraphService struct {
	db     *gorm.DB
	jwt    *auth.JwtManager
	graphs *table.Table
}

func (s *GraphService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Upload)
	r.Post("/download", s.Download)
	r.Post("/replace", s.Replace)
	r.Post("/remove", s.Remove)

	return r
}

type graphListRequest struct {
	Token    string `json:"token"`
	Skeleton string `json:"skeleton"`
}

type graphListEntry struct {
	Id       uint   `json:"id"`
	Name     string `json:"name"`
	Skeleton string `json:"skeleton"`
}

func (s *GraphService) List(w http.ResponseWriter, r *http.Request) {
	var params graphListRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, []graphListEntry{})
		return
	}

	q := catalog.Query{}
	if params.Skeleton != "" {
		q.Filters = append(q.Filters, catalog.Filter{Column: "skeleton", Value: params.Skeleton, ExactMatch: true})
	}

	rows, err := s.graphs.List([]string{"id", "name", "skeleton"}, q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]graphListEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, graphListEntry{
			Id:       uint(asInt64(row["id"])),
			Name:     asString(row["name"]),
			Skeleton: asString(row["skeleton"]),
		})
	}

	utils.WriteJsonResponse(w, entries)
}

type uploadGraphRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Skeleton string `json:"skeleton"`
	Data     string `json:"data"`
}

func (s *GraphService) Upload(w http.ResponseWriter, r *http.Request) {
	var params uploadGraphRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "graph name is required", http.StatusBadRequest)
		return
	}

	data, err := base64.StdEncoding.DecodeString(params.Data)
	if err != nil {
		http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
		return
	}

	id, err := s.graphs.Create(table.Record{
		"name": params.Name, "skeleton": params.Skeleton, "data": data,
	})
	if err != nil {
		slog.Error("error creating graph", "name", params.Name, "error", err)
		utils.WriteFailure(w)
		return
	}

	slog.Info("created graph", "graph_id", id, "name", params.Name)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": id})
}

type graphIdRequest struct {
	Token   string `json:"token"`
	GraphId uint   `json:"graph_id"`
}

// Download returns the raw stored blob. Unknown ids return an empty body.
func (s *GraphService) Download(w http.ResponseWriter, r *http.Request) {
	var params graphIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteBinary(w, nil)
		return
	}

	row, err := s.graphs.Get(params.GraphId, []string{"data"})
	if err != nil {
		if errors.Is(err, table.ErrRowNotFound) {
			utils.WriteBinary(w, nil)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, _ := row["data"].([]byte)
	utils.WriteBinary(w, data)
}

type replaceGraphRequest struct {
	Token   string  `json:"token"`
	GraphId uint    `json:"graph_id"`
	Name    string  `json:"name"`
	Data    *string `json:"data"`
}

func (s *GraphService) Replace(w http.ResponseWriter, r *http.Request) {
	var params replaceGraphRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteDone(w)
		return
	}

	if _, err := schema.GetGraph(params.GraphId, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	record := table.Record{}
	if params.Name != "" {
		record["name"] = params.Name
	}
	if params.Data != nil {
		data, err := base64.StdEncoding.DecodeString(*params.Data)
		if err != nil {
			http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
			return
		}
		record["data"] = data
	}
	if len(record) == 0 {
		utils.WriteSuccess(w)
		return
	}

	if err := s.graphs.Update(params.GraphId, record); err != nil {
		slog.Error("error replacing graph", "graph_id", params.GraphId, "error", err)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

func (s *GraphService) Remove(w http.ResponseWriter, r *http.Request) {
	var params graphIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteDone(w)
		return
	}

	if _, err := schema.GetGraph(params.GraphId, s.db); err != nil {
		if errors.Is(err, schema.ErrGraphNotFound) {
			utils.WriteSuccess(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.graphs.Delete(params.GraphId); err != nil {
		slog.Error("error removing graph", "graph_id", params.GraphId, "error", err)
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed graph", "graph_id", params.GraphId)
	utils.WriteSuccess(w)
}
