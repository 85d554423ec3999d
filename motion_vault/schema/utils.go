package schema

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrProjectNotFound       = errors.New("project not found")
	ErrCollectionNotFound    = errors.New("collection not found")
	ErrSkeletonNotFound      = errors.New("skeleton not found")
	ErrFileNotFound          = errors.New("file not found")
	ErrGraphNotFound         = errors.New("graph not found")
	ErrDataTypeNotFound      = errors.New("data type not found")
	ErrDataLoaderNotFound    = errors.New("data loader not found")
	ErrDataTransformNotFound = errors.New("data transform not found")
	ErrExperimentNotFound    = errors.New("experiment not found")
	ErrJobServerNotFound     = errors.New("job server not found")
	ErrDbAccessFailed        = errors.New("db access failed")
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// EngineDB is the loader engine the read path executes in process; loaders
// registered under other engines are catalog entries only.
const EngineDB = "db"

func GetUser(userId uint, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetUserByName(name string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user by name", "name", name, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetProject(projectId uint, db *gorm.DB, loadMembers bool) (Project, error) {
	var project Project

	var result *gorm.DB = db
	if loadMembers {
		result = result.Preload("Members").Preload("Members.User")
	}
	result = result.First(&project, "id = ?", projectId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return project, ErrProjectNotFound
		}
		slog.Error("sql error in get project", "project_id", projectId, "error", result.Error)
		return project, ErrDbAccessFailed
	}

	return project, nil
}

func GetCollection(collectionId uint, db *gorm.DB) (Collection, error) {
	var collection Collection

	result := db.First(&collection, "id = ?", collectionId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return collection, ErrCollectionNotFound
		}
		slog.Error("sql error in get collection", "collection_id", collectionId, "error", result.Error)
		return collection, ErrDbAccessFailed
	}

	return collection, nil
}

func GetSkeletonByName(name string, db *gorm.DB) (Skeleton, error) {
	var skeleton Skeleton

	result := db.First(&skeleton, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return skeleton, ErrSkeletonNotFound
		}
		slog.Error("sql error in get skeleton", "name", name, "error", result.Error)
		return skeleton, ErrDbAccessFailed
	}

	return skeleton, nil
}

func GetFile(fileId uint, db *gorm.DB) (File, error) {
	var file File

	result := db.First(&file, "id = ?", fileId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return file, ErrFileNotFound
		}
		slog.Error("sql error in get file", "file_id", fileId, "error", result.Error)
		return file, ErrDbAccessFailed
	}

	return file, nil
}

func GetGraph(graphId uint, db *gorm.DB) (Graph, error) {
	var graph Graph

	result := db.First(&graph, "id = ?", graphId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return graph, ErrGraphNotFound
		}
		slog.Error("sql error in get graph", "graph_id", graphId, "error", result.Error)
		return graph, ErrDbAccessFailed
	}

	return graph, nil
}

func GetDataTypeByName(name string, db *gorm.DB) (DataType, error) {
	var dataType DataType

	result := db.First(&dataType, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return dataType, ErrDataTypeNotFound
		}
		slog.Error("sql error in get data type", "name", name, "error", result.Error)
		return dataType, ErrDbAccessFailed
	}

	return dataType, nil
}

func GetDataLoader(dataType, engine string, db *gorm.DB) (DataLoader, error) {
	var loader DataLoader

	result := db.First(&loader, "data_type = ? and engine = ?", dataType, engine)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return loader, ErrDataLoaderNotFound
		}
		slog.Error("sql error in get data loader", "data_type", dataType, "engine", engine, "error", result.Error)
		return loader, ErrDbAccessFailed
	}

	return loader, nil
}

func GetDataTransform(transformId uint, db *gorm.DB, loadInputs bool) (DataTransform, error) {
	var transform DataTransform

	var result *gorm.DB = db
	if loadInputs {
		result = result.Preload("Inputs")
	}
	result = result.First(&transform, "id = ?", transformId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return transform, ErrDataTransformNotFound
		}
		slog.Error("sql error in get data transform", "transform_id", transformId, "error", result.Error)
		return transform, ErrDbAccessFailed
	}

	return transform, nil
}

func GetExperiment(experimentId uint, db *gorm.DB) (Experiment, error) {
	var experiment Experiment

	result := db.First(&experiment, "id = ?", experimentId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return experiment, ErrExperimentNotFound
		}
		slog.Error("sql error in get experiment", "experiment_id", experimentId, "error", result.Error)
		return experiment, ErrDbAccessFailed
	}

	return experiment, nil
}

func GetJobServer(serverId uint, db *gorm.DB) (JobServer, error) {
	var server JobServer

	result := db.First(&server, "id = ?", serverId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return server, ErrJobServerNotFound
		}
		slog.Error("sql error in get job server", "server_id", serverId, "error", result.Error)
		return server, ErrDbAccessFailed
	}

	return server, nil
}

// IsProjectMember reports explicit membership only; ownership and public
// visibility are checked by the caller.
func IsProjectMember(userId, projectId uint, db *gorm.DB) (bool, error) {
	var member ProjectMember
	result := db.First(&member, "user_id = ? and project_id = ?", userId, projectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		slog.Error("sql error in is project member", "user_id", userId, "project_id", projectId, "error", result.Error)
		return false, ErrDbAccessFailed
	}
	return true, nil
}
