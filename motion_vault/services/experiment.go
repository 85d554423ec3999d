package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/explog"
	"mocap_platform/motion_vault/runner"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/table"
	"mocap_platform/motion_vault/utils"
)

// ExperimentService tracks transform invocations. Running an experiment
// dispatches a job through the runner client; progress comes back through the
// experiment's CSV log, never through the job itself.
type ExperimentService struct {
	db    *gorm.DB
	jwt   *auth.JwtManager
	logs  *explog.Store
	jobs  runner.Client
	files *table.Table

	publicURL    string
	port         int
	clusterImage string
}

func (s *ExperimentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Add)
	r.Post("/edit", s.Edit)
	r.Post("/remove", s.Remove)
	r.Post("/info", s.Info)
	r.Post("/run", s.Run)
	r.Post("/status", s.Status)
	r.Post("/append_log", s.AppendLog)
	r.Post("/log", s.Log)

	return r
}

type experimentInfo struct {
	Id           uint   `json:"id"`
	Name         string `json:"name"`
	CollectionId uint   `json:"collection_id"`
	Skeleton     string `json:"skeleton"`
	TransformId  uint   `json:"transform_id"`
	Owner        uint   `json:"owner"`
	Output       string `json:"output"`
	ExternalURL  string `json:"external_url"`
}

func experimentToInfo(exp schema.Experiment) experimentInfo {
	return experimentInfo{
		Id: exp.ID, Name: exp.Name, CollectionId: exp.CollectionID,
		Skeleton: exp.Skeleton, TransformId: exp.DataTransformID,
		Owner: exp.OwnerID, Output: exp.Output, ExternalURL: exp.ExternalURL,
	}
}

func (s *ExperimentService) List(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, []experimentInfo{})
		return
	}

	var experiments []schema.Experiment
	query := s.db
	if !auth.IsAdmin(user) {
		query = query.Where("owner_id = ?", user.ID)
	}
	if result := query.Find(&experiments); result.Error != nil {
		slog.Error("sql error listing experiments", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]experimentInfo, 0, len(experiments))
	for _, exp := range experiments {
		infos = append(infos, experimentToInfo(exp))
	}
	utils.WriteJsonResponse(w, infos)
}

type addExperimentRequest struct {
	Token        string `json:"token"`
	Name         string `json:"name"`
	CollectionId uint   `json:"collection_id"`
	Skeleton     string `json:"skeleton"`
	TransformId  uint   `json:"transform_id"`
	Config       string `json:"config"`
	ExternalURL  string `json:"external_url"`
}

func (s *ExperimentService) Add(w http.ResponseWriter, r *http.Request) {
	var params addExperimentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "experiment name is required", http.StatusBadRequest)
		return
	}

	var experimentId uint
	err = s.db.Transaction(func(txn *gorm.DB) error {
		if params.CollectionId != 0 {
			if err := checkCollectionExists(txn, params.CollectionId); err != nil {
				return err
			}
		}
		if params.TransformId != 0 {
			if _, err := schema.GetDataTransform(params.TransformId, txn, false); err != nil {
				return CodedError(err, http.StatusBadRequest)
			}
		}

		experiment := schema.Experiment{
			Name: params.Name, CollectionID: params.CollectionId,
			Skeleton: params.Skeleton, DataTransformID: params.TransformId,
			Config: params.Config, ExternalURL: params.ExternalURL,
			OwnerID: user.ID,
		}
		if result := txn.Create(&experiment); result.Error != nil {
			slog.Error("sql error creating experiment", "name", params.Name, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		experimentId = experiment.ID
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	slog.Info("created experiment", "experiment_id", experimentId, "owner", user.ID)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": experimentId})
}

type editExperimentRequest struct {
	Token        string `json:"token"`
	ExperimentId uint   `json:"experiment_id"`
	Name         string `json:"name"`
	Config       string `json:"config"`
	ExternalURL  string `json:"external_url"`
	Output       string `json:"output"`
}

func (s *ExperimentService) Edit(w http.ResponseWriter, r *http.Request) {
	var params editExperimentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	experiment, err := schema.GetExperiment(params.ExperimentId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(experiment.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	updates := map[string]interface{}{}
	if params.Name != "" {
		updates["name"] = params.Name
	}
	if params.Config != "" {
		updates["config"] = params.Config
	}
	if params.ExternalURL != "" {
		updates["external_url"] = params.ExternalURL
	}
	if params.Output != "" {
		updates["output"] = params.Output
	}
	if len(updates) == 0 {
		utils.WriteSuccess(w)
		return
	}

	result := s.db.Model(&schema.Experiment{}).Where("id = ?", experiment.ID).Updates(updates)
	if result.Error != nil {
		slog.Error("sql error editing experiment", "experiment_id", experiment.ID, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

type experimentIdRequest struct {
	Token        string `json:"token"`
	ExperimentId uint   `json:"experiment_id"`
}

// Remove requires both the admin role and ownership.
func (s *ExperimentService) Remove(w http.ResponseWriter, r *http.Request) {
	var params experimentIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	experiment, err := schema.GetExperiment(params.ExperimentId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.IsAdmin(user) || experiment.OwnerID != user.ID {
		utils.WriteFailure(w)
		return
	}

	if result := s.db.Delete(&schema.Experiment{}, experiment.ID); result.Error != nil {
		slog.Error("sql error deleting experiment", "experiment_id", experiment.ID, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed experiment", "experiment_id", experiment.ID)
	utils.WriteSuccess(w)
}

func (s *ExperimentService) Info(w http.ResponseWriter, r *http.Request) {
	var params experimentIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	experiment, err := schema.GetExperiment(params.ExperimentId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(experiment.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	info := experimentToInfo(experiment)
	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true, "experiment": info, "config": experiment.Config,
	})
}

// Run collects the transform's input files from the experiment's collection,
// reserves an output row, and dispatches one transform job. The job reports
// back only through the experiment log.
func (s *ExperimentService) Run(w http.ResponseWriter, r *http.Request) {
	var params experimentIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	experiment, err := schema.GetExperiment(params.ExperimentId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(experiment.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	transform, err := schema.GetDataTransform(experiment.DataTransformID, s.db, true)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	inputIds, inputTypes, err := s.collectInputs(experiment, transform)
	if err != nil {
		slog.Error("error collecting transform inputs", "experiment_id", experiment.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(inputIds) == 0 {
		http.Error(w, "no input files match the transform's input types", http.StatusBadRequest)
		return
	}

	outputId, err := s.files.Create(table.Record{
		"name":          fmt.Sprintf("%s_output", experiment.Name),
		"collection_id": experiment.CollectionID,
		"skeleton":      experiment.Skeleton,
		"data_type":     transform.OutputType,
		"processed":     1,
	})
	if err != nil {
		slog.Error("error reserving output file", "experiment_id", experiment.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := s.jwt.CreateUserJwt(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	job := runner.TransformJob{
		JobName:        runner.JobName("transform", experiment.ID),
		Image:          s.clusterImage,
		InputSkeleton:  experiment.Skeleton,
		OutputSkeleton: experiment.Skeleton,
		OutputId:       outputId,
		InputIds:       inputIds,
		InputTypes:     inputTypes,
		Url:            s.publicURL,
		Port:           s.port,
		User:           user.Name,
		Token:          token,
		ExpName:        experiment.Name,
	}
	if experiment.Config != "" {
		job.HparamsFile = "hparams.json"
	}

	if err := s.jobs.StartJob(job); err != nil {
		slog.Error("error dispatching transform job", "experiment_id", experiment.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := s.db.Model(&schema.Experiment{}).Where("id = ?", experiment.ID).
		Update("output", fmt.Sprintf("%d", outputId))
	if result.Error != nil {
		slog.Error("sql error recording experiment output", "experiment_id", experiment.ID, "error", result.Error)
	}

	experimentRunMetric.Inc()
	slog.Info("started experiment", "experiment_id", experiment.ID, "job", job.JobName, "output_id", outputId)
	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true, "job": job.JobName, "output_id": outputId,
	})
}

func (s *ExperimentService) collectInputs(experiment schema.Experiment, transform schema.DataTransform) ([]uint, []string, error) {
	var inputIds []uint
	var inputTypes []string

	for _, input := range transform.Inputs {
		var files []schema.File
		result := s.db.Find(&files, "collection_id = ? and data_type = ?", experiment.CollectionID, input.DataType)
		if result.Error != nil {
			return nil, nil, schema.ErrDbAccessFailed
		}
		for _, file := range files {
			inputIds = append(inputIds, file.ID)
			inputTypes = append(inputTypes, file.DataType)
		}
	}

	return inputIds, inputTypes, nil
}

func (s *ExperimentService) Status(w http.ResponseWriter, r *http.Request) {
	var params experimentIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	experiment, err := schema.GetExperiment(params.ExperimentId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(experiment.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	info, err := s.jobs.JobInfo(runner.JobName("transform", experiment.ID))
	if err != nil {
		utils.WriteJsonResponse(w, map[string]interface{}{
			"success": true, "status": string(runner.StatusUnknown),
		})
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true, "status": string(info.Status),
	})
}

type appendLogRequest struct {
	Token        string     `json:"token"`
	ExperimentId uint       `json:"experiment_id"`
	Entry        [][]string `json:"entry"`
}

// AppendLog accepts [key, value] pairs; the order of the first entry fixes
// the CSV columns for the experiment's lifetime.
func (s *ExperimentService) AppendLog(w http.ResponseWriter, r *http.Request) {
	var params appendLogRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	entry := make([]explog.Field, 0, len(params.Entry))
	for _, pair := range params.Entry {
		if len(pair) != 2 {
			http.Error(w, "log entries must be [key, value] pairs", http.StatusBadRequest)
			return
		}
		entry = append(entry, explog.Field{Key: pair[0], Value: pair[1]})
	}

	if err := s.logs.Append(params.ExperimentId, entry); err != nil {
		if errors.Is(err, schema.ErrExperimentNotFound) {
			utils.WriteFailure(w)
			return
		}
		slog.Error("error appending experiment log", "experiment_id", params.ExperimentId, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

func (s *ExperimentService) Log(w http.ResponseWriter, r *http.Request) {
	var params experimentIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	fields, rows, err := s.logs.Get(params.ExperimentId)
	if err != nil {
		if errors.Is(err, schema.ErrExperimentNotFound) {
			utils.WriteFailure(w)
			return
		}
		slog.Error("error reading experiment log", "experiment_id", params.ExperimentId, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = [][]string{}
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true, "fields": fields, "rows": rows,
	})
}
