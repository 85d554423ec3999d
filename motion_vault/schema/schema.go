package schema

import "time"

// Blob-bearing columns (Data, MetaData) hold the salted-hash filename assigned
// by the blob store, never the payload itself. The table façade keeps the two
// in sync.

type User struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name     string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte
	Role     string `gorm:"size:20;not null;default:'user'"`
}

type Project struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name         string `gorm:"size:100;not null"`
	OwnerID      uint   `gorm:"not null"`
	CollectionID uint   `gorm:"not null"`
	Public       int    `gorm:"not null;default:0"`

	Owner   *User            `gorm:"foreignKey:OwnerID"`
	Members []ProjectMember  `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

type ProjectMember struct {
	UserID    uint `gorm:"primaryKey"`
	ProjectID uint `gorm:"primaryKey"`

	User    *User    `gorm:"constraint:OnDelete:CASCADE"`
	Project *Project `gorm:"constraint:OnDelete:CASCADE"`
}

// ParentID 0 marks a project root collection.
type Collection struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name     string `gorm:"size:100;not null"`
	Type     string `gorm:"size:50"`
	OwnerID  uint   `gorm:"not null"`
	ParentID uint   `gorm:"not null;default:0;index"`
	Public   int    `gorm:"not null;default:0"`
}

type Skeleton struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name     string `gorm:"unique;size:100;not null"`
	Data     string `gorm:"size:100"`
	MetaData string `gorm:"size:100"`
	OwnerID  uint   `gorm:"not null"`
}

// File is the generic storage row for motions, preprocessed motions, and
// statistical models. Skeleton and DataType reference the owning rows by name,
// matching the wire protocol.
type File struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name         string `gorm:"size:200;not null"`
	CollectionID uint   `gorm:"not null;index"`
	Skeleton     string `gorm:"size:100;index"`
	Data         string `gorm:"size:100"`
	MetaData     string `gorm:"size:100"`
	DataType     string `gorm:"size:100;index"`
	NumFrames    int    `gorm:"not null;default:0"`
	Processed    int    `gorm:"not null;default:0"`
	Subject      string
	Source       string
	Comment      string
}

type Graph struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name     string `gorm:"size:200;not null"`
	Skeleton string `gorm:"size:100;index"`
	Data     string `gorm:"size:100"`
}

type DataType struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name             string `gorm:"unique;size:100;not null"`
	Requirements     string
	IsModel          int `gorm:"not null;default:0"`
	IsTimeSeries     int `gorm:"not null;default:0"`
	IsSkeletonMotion int `gorm:"not null;default:0"`
	IsProcessed      int `gorm:"not null;default:0"`
}

// DataLoader rows are keyed by (DataType, Engine). The script column holds the
// decoder source registered by an admin; the executable decoders themselves
// are the built-in modules in the registry package.
type DataLoader struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	DataType     string `gorm:"size:100;not null;uniqueIndex:idx_loader_type_engine"`
	Engine       string `gorm:"size:50;not null;uniqueIndex:idx_loader_type_engine"`
	Script       string
	Requirements string
}

type Tag struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"unique;size:100;not null"`
}

type DataTypeTagging struct {
	DataType string `gorm:"size:100;primaryKey"`
	Tag      string `gorm:"size:100;primaryKey"`
}

type DataTransform struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name               string `gorm:"size:200;not null"`
	Script             string
	Parameters         string
	Requirements       string
	OutputType         string `gorm:"size:100"`
	OutputIsCollection int    `gorm:"not null;default:0"`

	Inputs []DataTransformInput `gorm:"foreignKey:DataTransformID;constraint:OnDelete:CASCADE"`
}

type DataTransformInput struct {
	ID uint `gorm:"primaryKey"`

	DataTransformID uint   `gorm:"not null;index"`
	DataType        string `gorm:"size:100;not null"`
	IsCollection    int    `gorm:"not null;default:0"`
}

type Experiment struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name            string `gorm:"size:200;not null"`
	CollectionID    uint   `gorm:"index"`
	Skeleton        string `gorm:"size:100"`
	DataTransformID uint
	Config          string
	LogFile         string
	LogFields       string
	ExternalURL     string
	OwnerID         uint `gorm:"not null"`
	Output          string
}

type JobServer struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Name    string `gorm:"unique;size:100;not null"`
	Address string `gorm:"size:200;not null"`
	Port    int    `gorm:"not null"`
	OwnerID uint   `gorm:"not null"`
}

const (
	UsersTable               = "users"
	ProjectsTable            = "projects"
	ProjectMembersTable      = "project_members"
	CollectionsTable         = "collections"
	SkeletonsTable           = "skeletons"
	FilesTable               = "files"
	GraphsTable              = "graphs"
	DataTypesTable           = "data_types"
	DataLoadersTable         = "data_loaders"
	TagsTable                = "tags"
	DataTypeTaggingsTable    = "data_type_taggings"
	DataTransformsTable      = "data_transforms"
	DataTransformInputsTable = "data_transform_inputs"
	ExperimentsTable         = "experiments"
	JobServersTable          = "job_servers"
)

// AllModels lists every catalog model for migration at startup.
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &Project{}, &ProjectMember{}, &Collection{},
		&Skeleton{}, &File{}, &Graph{},
		&DataType{}, &DataLoader{}, &Tag{}, &DataTypeTagging{},
		&DataTransform{}, &DataTransformInput{}, &Experiment{}, &JobServer{},
	}
}
