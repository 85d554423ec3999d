package services

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/blob"
	"mocap_platform/motion_vault/characters"
	"mocap_platform/motion_vault/explog"
	"mocap_platform/motion_vault/registry"
	"mocap_platform/motion_vault/runner"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/storage"
	"mocap_platform/motion_vault/table"
	"mocap_platform/motion_vault/upload"
	"mocap_platform/motion_vault/utils"
)

var (
	motionUploadMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "vault_motion_upload", Help: "Motion uploads"})
	motionReadMetric     = promauto.NewSummary(prometheus.SummaryOpts{Name: "vault_motion_read", Help: "Motion reads"})
	experimentRunMetric  = promauto.NewCounter(prometheus.CounterOpts{Name: "vault_experiment_runs", Help: "Experiment runs dispatched"})
	authFailureMetric    = promauto.NewCounter(prometheus.CounterOpts{Name: "vault_auth_failures", Help: "Failed authentications"})
	requestCounterMetric = promauto.NewCounterVec(prometheus.CounterOpts{Name: "vault_requests", Help: "Requests by path"}, []string{"path"})
)

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCounterMetric.WithLabelValues(r.URL.Path).Inc()
		next.ServeHTTP(w, r)
	})
}

func observe(metric prometheus.Summary, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metric.Observe(1)
		h(w, r)
	}
}

// Options is the subset of the server config the service layer needs.
type Options struct {
	Secret         []byte
	PublicURL      string
	Port           int
	ClusterURL     string
	ClusterImage   string
	EnableEditing  bool
	EnableDownload bool
}

// MotionVault aggregates the entity services over one catalog, one blob
// store, and one runner client.
type MotionVault struct {
	user       UserService
	project    ProjectService
	collection CollectionService
	skeleton   SkeletonService
	file       FileService
	graph      GraphService
	model      ModelService
	dataType   DataTypeService
	transform  DataTransformService
	experiment ExperimentService
	character  CharacterService
	server     ServerService

	db      *gorm.DB
	storage storage.Storage
	audit   auth.AuditLogger
}

func NewMotionVault(
	db *gorm.DB, store storage.Storage, jobs runner.Client, mailer auth.Mailer, opts Options,
) *MotionVault {
	jwt := auth.NewJwtManager(opts.Secret)
	blobs := blob.NewStore(store)
	reg := registry.New()
	buffer := upload.NewBuffer()

	files := table.New(schema.FilesTable, db, blobs)
	skeletons := table.New(schema.SkeletonsTable, db, blobs)
	graphs := table.New(schema.GraphsTable, db, blobs, "data")

	return &MotionVault{
		user:       UserService{db: db, jwt: jwt, mailer: mailer},
		project:    ProjectService{db: db, jwt: jwt},
		collection: CollectionService{db: db, jwt: jwt, files: files},
		skeleton:   SkeletonService{db: db, jwt: jwt, skeletons: skeletons},
		file: FileService{
			db: db, jwt: jwt, files: files, buffer: buffer, registry: reg,
			enableEditing: opts.EnableEditing, enableDownload: opts.EnableDownload,
		},
		graph:    GraphService{db: db, jwt: jwt, graphs: graphs},
		model:    ModelService{db: db, jwt: jwt, files: files, registry: reg},
		dataType: DataTypeService{db: db, jwt: jwt, registry: reg},
		transform: DataTransformService{
			db: db, jwt: jwt, clusterURL: opts.ClusterURL, clusterImage: opts.ClusterImage,
		},
		experiment: ExperimentService{
			db: db, jwt: jwt, logs: explog.NewStore(store, db), jobs: jobs, files: files,
			publicURL: opts.PublicURL, port: opts.Port, clusterImage: opts.ClusterImage,
		},
		character: CharacterService{db: db, jwt: jwt, characters: characters.NewStore(store)},
		server: ServerService{
			db: db, jwt: jwt, jobs: jobs,
			publicURL: opts.PublicURL, clusterImage: opts.ClusterImage,
		},
		db:      db,
		storage: store,
		audit:   auth.NewAuditLogger(os.Stderr),
	}
}

// ActivateLoaders loads every in-process decoder registered in the catalog.
// Called once at startup so restarts pick up existing loader rows.
func (m *MotionVault) ActivateLoaders() error {
	var loaders []schema.DataLoader
	if result := m.db.Find(&loaders, "engine = ?", schema.EngineDB); result.Error != nil {
		return schema.ErrDbAccessFailed
	}
	for _, loader := range loaders {
		if err := m.file.registry.Load(loader.DataType, loader.Script); err != nil {
			return err
		}
	}
	return nil
}

func (m *MotionVault) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(m.audit.Middleware)
	r.Use(countRequests)

	checkStorage := checkSufficientStorage(m.storage)

	r.Mount("/users", m.user.Routes())
	r.Mount("/projects", m.project.Routes())
	r.Mount("/collections", m.collection.Routes())
	r.Mount("/skeletons", m.skeleton.Routes())
	r.Mount("/graphs", m.graph.Routes())
	r.Mount("/models", m.model.Routes())
	r.Mount("/data_types", m.dataType.Routes())
	r.Mount("/data_loaders", m.dataType.LoaderRoutes())
	r.Mount("/data_transforms", m.transform.Routes())
	r.Mount("/experiments", m.experiment.Routes())
	r.Mount("/characters", m.character.Routes())
	r.Mount("/servers", m.server.Routes())

	r.Group(func(r chi.Router) {
		r.Use(checkStorage)
		r.Mount("/files", m.file.Routes())
	})

	m.legacyRoutes(r, checkStorage)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// legacyRoutes registers the original flat route surface. Each route shares
// its handler with the nested mount; both are load-bearing contracts.
func (m *MotionVault) legacyRoutes(r chi.Router, checkStorage func(http.Handler) http.Handler) {
	r.Post("/authenticate", m.user.Verify)

	r.Post("/get_project_list", m.project.List)
	r.Post("/project_members", m.project.Members)
	r.Post("/add_project_member", m.project.AddMember)
	r.Post("/remove_project_member", m.project.RemoveMember)
	r.Post("/user/projects", m.project.UserProjects)

	r.Post("/get_collection_list", m.collection.Tree)
	r.Post("/get_collection", m.collection.Info)
	r.Post("/create_new_collection", m.collection.Add)
	r.Post("/replace_collection", m.collection.Replace)
	r.Post("/remove_collection", m.collection.Remove)
	r.Post("/get_collections_by_name", m.collection.ByName)

	r.Post("/get_skeleton_list", m.skeleton.List)
	r.Post("/download_skeleton", m.skeleton.Download)
	r.Post("/replace_skeleton", m.skeleton.Replace)
	r.Post("/remove_skeleton", m.skeleton.Remove)

	r.Post("/get_motion", observe(motionReadMetric, m.file.GetMotion))
	r.Post("/get_motion_info", m.file.Info)
	r.Post("/get_motion_list", m.file.List)
	r.Post("/download_bvh", m.file.Download)
	r.Post("/download_annotation", m.file.DownloadAnnotation)
	r.Post("/replace_motion", m.file.Replace)
	r.Post("/delete_motion", m.file.Remove)

	r.Post("/get_graph_list", m.graph.List)
	r.Post("/download_graph", m.graph.Download)
	r.Post("/replace_graph", m.graph.Replace)
	r.Post("/remove_graph", m.graph.Remove)

	r.Post("/get_sample", m.model.GetSample)
	r.Post("/download_sample_as_bvh", m.model.DownloadSampleAsBvh)
	r.Post("/get_time_function", m.model.GetTimeFunction)

	r.Post("/get_character_model_list", m.character.List)
	r.Post("/delete_character_model", m.character.Delete)
	r.Post("/download_character_model", m.character.Download)

	// Upload routes refuse work when the disk is near capacity.
	r.Group(func(r chi.Router) {
		r.Use(checkStorage)

		r.Post("/upload_motion", observe(motionUploadMetric, m.file.UploadMotion))
		r.Post("/upload_bvh_clip", m.file.UploadBvhClip)
		r.Post("/upload_skeleton", m.skeleton.Add)
		r.Post("/upload_graph", m.graph.Upload)
		r.Post("/upload_character_model", m.character.Upload)
	})
}
