// Package config defines configuration structures for the haul CLI.
//
// Configuration is layered, later sources overriding earlier ones:
//   - Defaults (Default)
//   - YAML configuration file (LoadFromFile)
//   - Environment variables (HAUL_ prefix, DATA_PARENT_URL for the origin)
//   - Command-line flags (Merge)
//
// # Structure
//
//	type Config struct {
//	    Origin          string
//	    Datasets        []string
//	    LocalDir        string
//	    Bucket          string
//	    Prefix          string
//	    ChunkSize       int64
//	    Workers         int
//	    Overwrite       bool
//	    ContinueOnError bool
//	    Progress        bool
//	    LogLevel        string
//	    LogFormat       string
//	    Region          string
//	    Endpoint        string
//	    Retry           RetryConfig
//	}
//
// Chunk sizes accept byte strings ("256MB", "1GiB"); a bare number is a
// count of MiB.
package config
