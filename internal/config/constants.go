package config

// SnapshotFileExtensions are all recognized snapshot document extensions
var SnapshotFileExtensions = []string{".yaml", ".yml"}

// ProtoFileExt is the extension recognized as a protobuf definition.
const ProtoFileExt = ".proto"

// Provider names, as recorded in reports, baselines and run history.
const (
	ProviderSnapshot = "snapshot"
	ProviderProto    = "proto"
	ProviderGo       = "go"
)

// DefaultServeAddr is the listen address for the gRPC facade.
const DefaultServeAddr = ":7911"
