package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/runner"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/utils"
)

// ServerService is the job-server registry: named hosts that experiments and
// editors can be pointed at, started on demand through the runner client.
type ServerService struct {
	db   *gorm.DB
	jwt  *auth.JwtManager
	jobs runner.Client

	publicURL    string
	clusterImage string
}

func (s *ServerService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Add)
	r.Post("/remove", s.Remove)
	r.Post("/start", s.Start)

	return r
}

type serverInfo struct {
	Id      uint   `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
	Owner   uint   `json:"owner"`
}

func (s *ServerService) List(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, []serverInfo{})
		return
	}

	var servers []schema.JobServer
	if result := s.db.Find(&servers); result.Error != nil {
		slog.Error("sql error listing job servers", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]serverInfo, 0, len(servers))
	for _, server := range servers {
		infos = append(infos, serverInfo{
			Id: server.ID, Name: server.Name, Address: server.Address,
			Port: server.Port, Owner: server.OwnerID,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

type addServerRequest struct {
	Token   string `json:"token"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func (s *ServerService) Add(w http.ResponseWriter, r *http.Request) {
	var params addServerRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" || params.Address == "" {
		http.Error(w, "server name and address are required", http.StatusBadRequest)
		return
	}

	server := schema.JobServer{
		Name: params.Name, Address: params.Address,
		Port: params.Port, OwnerID: user.ID,
	}
	if result := s.db.Create(&server); result.Error != nil {
		slog.Error("error creating job server", "name", params.Name, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	slog.Info("registered job server", "server_id", server.ID, "name", params.Name)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": server.ID})
}

type serverIdRequest struct {
	Token    string `json:"token"`
	ServerId uint   `json:"server_id"`
}

func (s *ServerService) Remove(w http.ResponseWriter, r *http.Request) {
	var params serverIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	server, err := schema.GetJobServer(params.ServerId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrJobServerNotFound) {
			utils.WriteSuccess(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !auth.CanMutate(server.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	if result := s.db.Delete(&schema.JobServer{}, server.ID); result.Error != nil {
		slog.Error("sql error deleting job server", "server_id", server.ID, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	if err := s.jobs.StopJob(runner.JobName("server", server.ID)); err != nil {
		slog.Error("error stopping job server", "server_id", server.ID, "error", err)
	}

	slog.Info("removed job server", "server_id", server.ID)
	utils.WriteSuccess(w)
}

// Start dispatches the server process for a registered host.
func (s *ServerService) Start(w http.ResponseWriter, r *http.Request) {
	var params serverIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	server, err := schema.GetJobServer(params.ServerId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(server.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	token, err := s.jwt.CreateUserJwt(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	job := runner.ServerJob{
		JobName: runner.JobName("server", server.ID),
		Image:   s.clusterImage,
		Address: server.Address,
		Port:    server.Port,
		Url:     s.publicURL,
		Token:   token,
	}
	if err := s.jobs.StartJob(job); err != nil {
		slog.Error("error starting job server", "server_id", server.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("started job server", "server_id", server.ID, "job", job.JobName)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "job": job.JobName})
}
