package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/utils"
)

// DataTransformService manages the transform scripts experiments run. The
// scripts execute outside the service; /info hands the runner everything it
// needs to materialize one.
type DataTransformService struct {
	db  *gorm.DB
	jwt *auth.JwtManager

	clusterURL   string
	clusterImage string
}

func (s *DataTransformService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Add)
	r.Post("/edit", s.Edit)
	r.Post("/remove", s.Remove)
	r.Post("/info", s.Info)

	return r
}

type transformInputInfo struct {
	DataType     string `json:"data_type"`
	IsCollection int    `json:"is_collection"`
}

type transformInfo struct {
	Id         uint                 `json:"id"`
	Name       string               `json:"name"`
	OutputType string               `json:"output_type"`
	Inputs     []transformInputInfo `json:"inputs"`
}

func (s *DataTransformService) List(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, []transformInfo{})
		return
	}

	var transforms []schema.DataTransform
	if result := s.db.Preload("Inputs").Find(&transforms); result.Error != nil {
		slog.Error("sql error listing data transforms", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]transformInfo, 0, len(transforms))
	for _, transform := range transforms {
		infos = append(infos, transformInfo{
			Id: transform.ID, Name: transform.Name, OutputType: transform.OutputType,
			Inputs: transformInputs(transform),
		})
	}
	utils.WriteJsonResponse(w, infos)
}

func transformInputs(transform schema.DataTransform) []transformInputInfo {
	inputs := make([]transformInputInfo, 0, len(transform.Inputs))
	for _, input := range transform.Inputs {
		inputs = append(inputs, transformInputInfo{
			DataType: input.DataType, IsCollection: input.IsCollection,
		})
	}
	return inputs
}

type addTransformRequest struct {
	Token              string               `json:"token"`
	Name               string               `json:"name"`
	Script             string               `json:"script"`
	Parameters         string               `json:"parameters"`
	Requirements       string               `json:"requirements"`
	OutputType         string               `json:"output_type"`
	OutputIsCollection int                  `json:"output_is_collection"`
	Inputs             []transformInputInfo `json:"inputs"`
}

func (s *DataTransformService) Add(w http.ResponseWriter, r *http.Request) {
	var params addTransformRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil || !auth.IsAdmin(user) {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "transform name is required", http.StatusBadRequest)
		return
	}

	transform := schema.DataTransform{
		Name: params.Name, Script: params.Script, Parameters: params.Parameters,
		Requirements: params.Requirements, OutputType: params.OutputType,
		OutputIsCollection: params.OutputIsCollection,
	}
	for _, input := range params.Inputs {
		transform.Inputs = append(transform.Inputs, schema.DataTransformInput{
			DataType: input.DataType, IsCollection: input.IsCollection,
		})
	}

	if result := s.db.Create(&transform); result.Error != nil {
		slog.Error("error creating data transform", "name", params.Name, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	slog.Info("created data transform", "transform_id", transform.ID, "name", params.Name)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": transform.ID})
}

type transformIdRequest struct {
	Token       string `json:"token"`
	TransformId uint   `json:"transform_id"`
}

type editTransformRequest struct {
	Token              string                `json:"token"`
	TransformId        uint                  `json:"transform_id"`
	Name               string                `json:"name"`
	Script             string                `json:"script"`
	Parameters         *string               `json:"parameters"`
	Requirements       *string               `json:"requirements"`
	OutputType         string                `json:"output_type"`
	OutputIsCollection *int                  `json:"output_is_collection"`
	Inputs             *[]transformInputInfo `json:"inputs"`
}

// Edit updates a transform's fields. Supplying inputs replaces the input set
// wholesale; omitting them leaves the existing inputs untouched.
func (s *DataTransformService) Edit(w http.ResponseWriter, r *http.Request) {
	var params editTransformRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil || !auth.IsAdmin(user) {
		utils.WriteFailure(w)
		return
	}

	if _, err := schema.GetDataTransform(params.TransformId, s.db, false); err != nil {
		utils.WriteFailure(w)
		return
	}

	updates := map[string]interface{}{}
	if params.Name != "" {
		updates["name"] = params.Name
	}
	if params.Script != "" {
		updates["script"] = params.Script
	}
	if params.Parameters != nil {
		updates["parameters"] = *params.Parameters
	}
	if params.Requirements != nil {
		updates["requirements"] = *params.Requirements
	}
	if params.OutputType != "" {
		updates["output_type"] = params.OutputType
	}
	if params.OutputIsCollection != nil {
		updates["output_is_collection"] = *params.OutputIsCollection
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if len(updates) > 0 {
			result := txn.Model(&schema.DataTransform{}).Where("id = ?", params.TransformId).Updates(updates)
			if result.Error != nil {
				slog.Error("sql error editing transform", "transform_id", params.TransformId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		if params.Inputs != nil {
			if result := txn.Delete(&schema.DataTransformInput{}, "data_transform_id = ?", params.TransformId); result.Error != nil {
				slog.Error("sql error replacing transform inputs", "transform_id", params.TransformId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			for _, input := range *params.Inputs {
				row := schema.DataTransformInput{
					DataTransformID: params.TransformId,
					DataType:        input.DataType,
					IsCollection:    input.IsCollection,
				}
				if result := txn.Create(&row); result.Error != nil {
					slog.Error("sql error creating transform input", "transform_id", params.TransformId, "error", result.Error)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
			}
		}
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	slog.Info("edited data transform", "transform_id", params.TransformId)
	utils.WriteSuccess(w)
}

func (s *DataTransformService) Remove(w http.ResponseWriter, r *http.Request) {
	var params transformIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil || !auth.IsAdmin(user) {
		utils.WriteFailure(w)
		return
	}

	if _, err := schema.GetDataTransform(params.TransformId, s.db, false); err != nil {
		if errors.Is(err, schema.ErrDataTransformNotFound) {
			utils.WriteSuccess(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.DataTransformInput{}, "data_transform_id = ?", params.TransformId); result.Error != nil {
			slog.Error("sql error deleting transform inputs", "transform_id", params.TransformId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.DataTransform{}, params.TransformId); result.Error != nil {
			slog.Error("sql error deleting transform", "transform_id", params.TransformId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed data transform", "transform_id", params.TransformId)
	utils.WriteSuccess(w)
}

// Info is the runner-facing contract: everything needed to write the script
// to disk and invoke it, plus the cluster config when one is configured.
func (s *DataTransformService) Info(w http.ResponseWriter, r *http.Request) {
	var params transformIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	transform, err := schema.GetDataTransform(params.TransformId, s.db, true)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	info := map[string]interface{}{
		"success":              true,
		"name":                 transform.Name,
		"script":               transform.Script,
		"requirements":         transform.Requirements,
		"output_type":          transform.OutputType,
		"output_is_collection": transform.OutputIsCollection,
		"parameters":           transform.Parameters,
		"inputs":               transformInputs(transform),
	}
	if s.clusterURL != "" {
		info["cluster_config"] = map[string]string{
			"url": s.clusterURL, "image": s.clusterImage,
		}
	}

	utils.WriteJsonResponse(w, info)
}
